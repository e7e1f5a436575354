package repository

import (
	"errors"

	"robot_overlord_api/internal/domain/content/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VersionRepository 内容版本仓库
type VersionRepository interface {
	// CreateVersion 在事务内分配 max+1 版本号并插入；tx 为空时自开事务。
	// (content_pk, version_number) 唯一索引兜底并发竞争。
	CreateVersion(tx *gorm.DB, version *model.ContentVersion) error
	GetByID(id string) (*model.ContentVersion, error)
	GetHistory(contentPK string, limit int) ([]model.ContentVersion, error)
	GetLatest(contentPK string) (*model.ContentVersion, error)
	GetByAppeal(appealPK string) (*model.ContentVersion, error)

	CreateRestoration(tx *gorm.DB, restoration *model.ContentRestoration) error
}

type versionRepository struct {
	db *gorm.DB
}

func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) CreateVersion(tx *gorm.DB, version *model.ContentVersion) error {
	assign := func(tx *gorm.DB) error {
		// 锁住最新版本行保证版本号连续无空洞；Postgres 不允许
		// 聚合查询带 FOR UPDATE，所以取 LIMIT 1 的具体行来锁
		var latest model.ContentVersion
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("content_pk = ?", version.ContentPK).
			Order("version_number DESC").
			First(&latest).Error
		switch {
		case err == nil:
			version.VersionNumber = latest.VersionNumber + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 首个版本没有行可锁，并发首版竞争由唯一索引兜底
			version.VersionNumber = 1
		default:
			return err
		}
		return tx.Create(version).Error
	}
	if tx != nil {
		return assign(tx)
	}
	return r.db.Transaction(assign)
}

func (r *versionRepository) GetByID(id string) (*model.ContentVersion, error) {
	var v model.ContentVersion
	if err := r.db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepository) GetHistory(contentPK string, limit int) ([]model.ContentVersion, error) {
	var versions []model.ContentVersion
	err := r.db.Where("content_pk = ?", contentPK).
		Order("version_number desc").
		Limit(limit).
		Find(&versions).Error
	return versions, err
}

func (r *versionRepository) GetLatest(contentPK string) (*model.ContentVersion, error) {
	var v model.ContentVersion
	err := r.db.Where("content_pk = ?", contentPK).
		Order("version_number desc").
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepository) GetByAppeal(appealPK string) (*model.ContentVersion, error) {
	var v model.ContentVersion
	err := r.db.Where("appeal_pk = ?", appealPK).
		Order("version_number desc").
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *versionRepository) CreateRestoration(tx *gorm.DB, restoration *model.ContentRestoration) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.Create(restoration).Error
}
