package models

import (
	"bytes"
	"encoding/json"
)

// InstitutionType is sent by the upstream API either as a plain key or as an object.
type InstitutionType struct {
	Key   string `json:"key"`
	Name  string `json:"name,omitempty"`
	Level int    `json:"level,omitempty"`
}

// UnmarshalJSON accepts "school" as well as {"key": "school", "name": ..., "level": ...}.
func (t *InstitutionType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		*t = InstitutionType{Key: key}
		return nil
	}
	type plain InstitutionType
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*t = InstitutionType(out)
	return nil
}

// Institution is a node of the ministry > region > sector > school hierarchy.
type Institution struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	ShortName    *string         `json:"short_name,omitempty"`
	Type         InstitutionType `json:"type"`
	Level        int             `json:"level"`
	Code         *string         `json:"institution_code,omitempty"`
	ParentID     *int64          `json:"parent_id,omitempty"`
	RegionCode   *string         `json:"region_code,omitempty"`
	IsActive     bool            `json:"is_active"`
	StudentCount *int            `json:"student_count,omitempty"`
	TeacherCount *int            `json:"teacher_count,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

// InstitutionPayload is the create/update body.
type InstitutionPayload struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Type     string  `json:"type" validate:"required,oneof=ministry region sektor school"`
	Level    int     `json:"level,omitempty" validate:"omitempty,min=1,max=4"`
	ParentID *int64  `json:"parent_id,omitempty"`
	Code     *string `json:"code,omitempty"`
	Address  *string `json:"address,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}
