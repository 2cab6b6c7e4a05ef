package alipayauth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseProfile normalizes an alipay.user.info.share payload. v may be the
// JSON text (string, []byte or json.RawMessage) or an already decoded
// map[string]any.
//
// The profile id is the string form of user_id, falling back to open_id.
// A payload carrying neither is rejected with an ErrKindMalformedProfile
// error, as is input that is not a JSON object.
func ParseProfile(v any) (*Profile, error) {
	var data map[string]any
	switch p := v.(type) {
	case map[string]any:
		data = p
	case string:
		m, err := decodeProfileJSON([]byte(p))
		if err != nil {
			return nil, err
		}
		data = m
	case []byte:
		m, err := decodeProfileJSON(p)
		if err != nil {
			return nil, err
		}
		data = m
	case json.RawMessage:
		m, err := decodeProfileJSON(p)
		if err != nil {
			return nil, err
		}
		data = m
	default:
		return nil, newAuthError(ErrKindMalformedProfile, "", fmt.Sprintf("unsupported profile payload type %T", v), nil)
	}
	if data == nil {
		return nil, newAuthError(ErrKindMalformedProfile, "", "profile payload is empty", nil)
	}

	id := stringField(data, "user_id")
	if id == "" {
		id = stringField(data, "open_id")
	}
	if id == "" {
		return nil, newAuthError(ErrKindMalformedProfile, "", "profile payload has no user_id", nil)
	}

	avatar := stringField(data, "avatar")

	var gender Gender
	switch stringField(data, "gender") {
	case "m", "M":
		gender = GenderMale
	case "f", "F":
		gender = GenderFemale
	}

	return &Profile{
		Provider:    providerName,
		ID:          id,
		DisplayName: stringField(data, "nick_name"),
		Avatar:      avatar,
		Photos:      []Photo{{Value: avatar}},
		OpenID:      stringField(data, "open_id"),
		Gender:      gender,
		Province:    stringField(data, "province"),
		City:        stringField(data, "city"),
		Raw:         data,
	}, nil
}

func decodeProfileJSON(b []byte) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, newAuthError(ErrKindMalformedProfile, "", "profile is not a JSON object: "+err.Error(), err)
	}
	return m, nil
}
