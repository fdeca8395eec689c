package repository

import (
	"context"
	"errors"

	"saghat/internal/infrastructure/database"
	"saghat/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrMemberNotFound  = errors.New("成员不存在")
	ErrDuplicateMember = errors.New("用户名已存在")
)

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.Member) error {
	err := r.db.WithContext(ctx).Create(member).Error
	if database.IsDuplicateKey(err) {
		return ErrDuplicateMember
	}
	return err
}

func (r *MemberRepository) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) GetByUsername(ctx context.Context, username string) (*model.Member, error) {
	var member model.Member
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// ListActive 所有活跃成员，按 ID 升序，保证审计日志顺序稳定
func (r *MemberRepository) ListActive(ctx context.Context) ([]*model.Member, error) {
	var members []*model.Member
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&members).Error
	return members, err
}

func (r *MemberRepository) UpdateLoanRequest(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Member{}).
		Where("id = ?", id).
		Update("loan_request_amount", amount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// IncreaseBalance 余额只增不减，由缴款事务调用
func (r *MemberRepository) IncreaseBalance(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Member{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}
