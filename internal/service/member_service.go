package service

import (
	"context"
	"errors"
	"strings"

	"saghat/internal/model"
	"saghat/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MemberService struct {
	memberRepo *repository.MemberRepository
	history    *HistoryLoader
}

func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{
		memberRepo: repository.NewMemberRepository(db),
		history:    NewHistoryLoader(db),
	}
}

type CreateMemberRequest struct {
	Username string
	IsMain   bool
}

// Create 新成员余额和申请额为 0，默认活跃
func (s *MemberService) Create(ctx context.Context, req *CreateMemberRequest) (*model.Member, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, errors.New("用户名不能为空")
	}

	member := &model.Member{
		Username:          username,
		Balance:           decimal.Zero,
		LoanRequestAmount: decimal.Zero,
		IsMain:            req.IsMain,
		IsActive:          true,
	}
	if err := s.memberRepo.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *MemberService) Get(ctx context.Context, id int64) (*model.Member, error) {
	return s.memberRepo.GetByID(ctx, id)
}

// MemberDetail 成员信息；Remaining 仅在借款未还清时返回
type MemberDetail struct {
	*model.Member
	HasActiveLoan bool             `json:"has_active_loan"`
	Remaining     *decimal.Decimal `json:"remaining,omitempty"`
}

func (s *MemberService) Detail(ctx context.Context, id int64) (*MemberDetail, error) {
	member, err := s.memberRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, member)
}

// DetailByUsername 用户名查询，前后空白忽略
func (s *MemberService) DetailByUsername(ctx context.Context, username string) (*MemberDetail, error) {
	member, err := s.memberRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, member)
}

func (s *MemberService) detail(ctx context.Context, member *model.Member) (*MemberDetail, error) {
	snapshot, err := s.history.Load(ctx, member.ID)
	if err != nil {
		return nil, err
	}

	detail := &MemberDetail{Member: member, HasActiveLoan: snapshot.HasActiveLoan()}
	if snapshot.Outstanding != nil {
		remaining := snapshot.Remaining
		detail.Remaining = &remaining
	}
	return detail, nil
}

// UpdateLoanRequest 0 表示下一期不参与分配
func (s *MemberService) UpdateLoanRequest(ctx context.Context, id int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return s.memberRepo.UpdateLoanRequest(ctx, nil, id, amount)
}

func (s *MemberService) SetActive(ctx context.Context, id int64, active bool) error {
	return s.memberRepo.SetActive(ctx, id, active)
}
