package service

import (
	"errors"

	"robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/content/repository"
	"robot_overlord_api/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotRestorable 内容不处于可恢复的负面终态
var ErrNotRestorable = errors.New("content is not in a restorable state")

// RestoreRequest 申诉得直后的恢复请求
type RestoreRequest struct {
	ContentType model.ContentType
	ContentPK   string
	AppealPK    string
	RestoredBy  string
	// 审核人提供的编辑稿，空则原样恢复
	EditedTitle   *string
	EditedContent *string
	EditReason    string
}

// RestorationService 把负面终态内容恢复为可见，并留下版本与恢复记录
type RestorationService interface {
	// Restore 在给定事务内执行：建版本、应用编辑稿、状态翻转、写恢复记录
	Restore(tx *gorm.DB, req RestoreRequest) (*model.ContentRestoration, error)
}

type restorationService struct {
	contents repository.ContentRepository
	versions repository.VersionRepository
}

// NewRestorationService 创建恢复服务
func NewRestorationService(contents repository.ContentRepository, versions repository.VersionRepository) RestorationService {
	return &restorationService{contents: contents, versions: versions}
}

func (s *restorationService) Restore(tx *gorm.DB, req RestoreRequest) (*model.ContentRestoration, error) {
	ref, err := s.contents.GetRef(req.ContentType, req.ContentPK)
	if err != nil {
		return nil, err
	}
	if !ref.Status.NegativeTerminal() {
		return nil, ErrNotRestorable
	}

	version := &model.ContentVersion{
		ContentType:     req.ContentType,
		ContentPK:       req.ContentPK,
		OriginalTitle:   ref.Title,
		OriginalContent: ref.Body,
		EditedTitle:     req.EditedTitle,
		EditedContent:   req.EditedContent,
		EditedBy:        &req.RestoredBy,
		EditReason:      req.EditReason,
		EditType:        model.EditAppealRestoration,
		AppealPK:        &req.AppealPK,
	}
	if err := s.versions.CreateVersion(tx, version); err != nil {
		return nil, err
	}

	if version.HasEdits() {
		if err := s.contents.ApplyEditedBody(tx, req.ContentType, req.ContentPK,
			req.EditedTitle, req.EditedContent); err != nil {
			return nil, err
		}
	}

	if err := s.contents.TransitionStatus(tx, req.ContentType, req.ContentPK,
		ref.Status, model.StatusApproved, "restored on appeal"); err != nil {
		return nil, err
	}

	restoration := &model.ContentRestoration{
		ContentType: req.ContentType,
		ContentPK:   req.ContentPK,
		AppealPK:    req.AppealPK,
		VersionPK:   version.ID,
		RestoredBy:  req.RestoredBy,
		AppliedEdit: version.HasEdits(),
	}
	if err := s.versions.CreateRestoration(tx, restoration); err != nil {
		return nil, err
	}

	logger.Log.Info("content restored",
		zap.String("content_pk", req.ContentPK),
		zap.String("content_type", string(req.ContentType)),
		zap.String("appeal_pk", req.AppealPK),
		zap.Int("version", version.VersionNumber),
		zap.Bool("applied_edit", restoration.AppliedEdit),
	)
	return restoration, nil
}
