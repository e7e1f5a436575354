package model

import (
	baseModel "robot_overlord_api/pkg/model"
)

// EditType 版本产生的原因
type EditType string

const (
	EditAppealRestoration EditType = "appeal_restoration"
	EditModerator         EditType = "moderator_edit"
	EditAuthor            EditType = "author_edit"
)

// ContentVersion 内容版本快照，只追加，版本号按内容逐一递增且无空洞。
// 原文与编辑稿并排保存，恢复操作永远不会静默覆盖历史。
type ContentVersion struct {
	baseModel.BaseModel
	ContentType   ContentType `gorm:"size:32" json:"contentType"`
	ContentPK     string      `gorm:"type:uuid;index;uniqueIndex:idx_content_version,priority:1" json:"contentPk"`
	VersionNumber int         `gorm:"uniqueIndex:idx_content_version,priority:2" json:"versionNumber"`

	OriginalTitle   string `gorm:"size:200" json:"originalTitle,omitempty"`
	OriginalContent string `gorm:"type:text" json:"originalContent"`

	EditedTitle   *string `gorm:"size:200" json:"editedTitle,omitempty"`
	EditedContent *string `gorm:"type:text" json:"editedContent,omitempty"`

	EditedBy   *string  `gorm:"type:uuid" json:"editedBy,omitempty"`
	EditReason string   `gorm:"size:1000" json:"editReason,omitempty"`
	EditType   EditType `gorm:"size:50;default:'appeal_restoration'" json:"editType"`
	AppealPK   *string  `gorm:"type:uuid" json:"appealPk,omitempty"`
}

// HasEdits 该版本是否携带编辑稿
func (v *ContentVersion) HasEdits() bool {
	return v.EditedContent != nil || v.EditedTitle != nil
}

// ContentRestoration 恢复记录，关联申诉、版本与执行人
type ContentRestoration struct {
	baseModel.BaseModel
	ContentType ContentType `gorm:"size:32" json:"contentType"`
	ContentPK   string      `gorm:"type:uuid;index" json:"contentPk"`
	AppealPK    string      `gorm:"type:uuid;index" json:"appealPk"`
	VersionPK   string      `gorm:"type:uuid" json:"versionPk"`
	RestoredBy  string      `gorm:"type:uuid" json:"restoredBy"`
	AppliedEdit bool        `json:"appliedEdit"` // 是否采用了编辑稿而非原文
}
