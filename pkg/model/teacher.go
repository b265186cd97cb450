package model

// UnknownTeacherName 无法解析的教师显示名
const UnknownTeacherName = "غير معروف"

// TeacherRef 教师标识
// ID 为系统内按学校命名空间化的标识，OriginalID 为课表导出文件中的标识，
// 课表节次通过 OriginalID 关联教师
type TeacherRef struct {
	ID         string `json:"id" db:"id"`
	OriginalID string `json:"original_id,omitempty" db:"original_id"`
}

// Key 返回与课表节次关联使用的标识
func (r TeacherRef) Key() string {
	if r.OriginalID != "" {
		return r.OriginalID
	}
	return r.ID
}

// Matches 检查标识是否指向该教师（系统标识或原始标识）
func (r TeacherRef) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == r.ID || id == r.Key()
}

// Teacher 教师
type Teacher struct {
	TeacherRef
	Name     string `json:"name" db:"name"`
	Subject  string `json:"subject" db:"subject"` // 主授科目
	SchoolID string `json:"school_id,omitempty" db:"school_id"`
}

// Subject 科目（含年级）
type Subject struct {
	ID         string `json:"id"`
	OriginalID string `json:"original_id,omitempty"`
	Name       string `json:"name"`
}

// Key 返回与课表节次关联使用的标识
func (s Subject) Key() string {
	if s.OriginalID != "" {
		return s.OriginalID
	}
	return s.ID
}

// Class 班级
type Class struct {
	ID         string `json:"id"`
	OriginalID string `json:"original_id,omitempty"`
	Name       string `json:"name"`
}

// Key 返回与课表节次关联使用的标识
func (c Class) Key() string {
	if c.OriginalID != "" {
		return c.OriginalID
	}
	return c.ID
}
