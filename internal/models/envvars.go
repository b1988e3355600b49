package models

import (
	"bytes"
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// EnvVar는 .env 한 줄(KEY=VALUE)입니다.
type EnvVar struct {
	Key   string
	Value string
}

// EnvVars는 요청 본문에 나타난 순서를 유지하는 환경 변수 목록입니다.
// JSON에서는 객체({"KEY":"VALUE"})로 표현됩니다.
type EnvVars []EnvVar

func (e EnvVars) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(v.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *EnvVars) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("environment_variables must be an object")
	}

	out := EnvVars{}
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("environment_variables: unexpected key %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("environment_variables[%s]: value must be a string", key)
		}
		// 중복 키는 마지막 값이 이기되, 처음 등장한 위치를 유지
		if idx, dup := seen[key]; dup {
			out[idx].Value = value
			continue
		}
		seen[key] = len(out)
		out = append(out, EnvVar{Key: key, Value: value})
	}
	*e = out
	return nil
}

// Value는 gorm 저장용 JSON 텍스트를 반환합니다.
func (e EnvVars) Value() (driver.Value, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *EnvVars) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case string:
		return e.UnmarshalJSON([]byte(v))
	case []byte:
		return e.UnmarshalJSON(v)
	default:
		return fmt.Errorf("unsupported environment_variables column type %T", src)
	}
}

// Get은 key의 값을 반환합니다.
func (e EnvVars) Get(key string) (string, bool) {
	for _, v := range e {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}
