package service

import (
	"saghat/internal/model"
	"saghat/internal/scoring"

	"github.com/shopspring/decimal"
)

// candidate 一个活跃成员及其历史快照
type candidate struct {
	member   *model.Member
	snapshot *MemberSnapshot
}

type scoredCandidate struct {
	member *model.Member
	score  scoring.Score
}

// decision 一期分配的决策结果，尚未落库
type decision struct {
	state  string
	winner *model.Member
	log    model.AuditLog
}

// eligibilityReason 第一个不满足的条件；全部满足返回空串
func eligibilityReason(c candidate) string {
	m := c.member
	if !m.IsMain && m.LoanRequestAmount.GreaterThan(m.Balance) {
		return model.ReasonRequestExceedsBalance
	}
	if c.snapshot.HasActiveLoan() {
		return model.ReasonActiveLoan
	}
	if !m.LoanRequestAmount.IsPositive() {
		return model.ReasonOptedOut
	}
	return ""
}

// decide 资格筛选 -> 打分 -> 基金余额筛选 -> 最高分组 -> 随机选取
//
// candidates 需按成员 ID 升序传入，审计日志和 random_pool 的顺序与之一致。
func decide(candidates []candidate, fundBalance decimal.Decimal, picker Picker) decision {
	log := model.AuditLog{
		NotParticipated: []model.NotParticipatedEntry{},
		Participated:    []model.ParticipatedEntry{},
		RandomPool:      []int64{},
	}

	eligible := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if reason := eligibilityReason(c); reason != "" {
			log.NotParticipated = append(log.NotParticipated, model.NotParticipatedEntry{
				MemberID: c.member.ID,
				Username: c.member.Username,
				Reason:   reason,
			})
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) == 0 {
		return decision{state: model.AllocationStateUnallocated, log: log}
	}

	affordable := make([]scoredCandidate, 0, len(eligible))
	for _, c := range eligible {
		score := scoring.Compute(c.member, &c.snapshot.History)
		log.Participated = append(log.Participated, model.ParticipatedEntry{
			MemberID: c.member.ID,
			Username: c.member.Username,
			Point:    score.String(),
		})
		if c.member.LoanRequestAmount.LessThanOrEqual(fundBalance) {
			affordable = append(affordable, scoredCandidate{member: c.member, score: score})
		}
	}

	if len(affordable) == 0 {
		log.Note = model.NoteNoAffordableRequest
		return decision{state: model.AllocationStateUnallocated, log: log}
	}

	group := winnerGroup(affordable)
	for _, c := range group {
		log.RandomPool = append(log.RandomPool, c.member.ID)
	}

	winner := group[picker.Intn(len(group))].member
	selected := winner.ID
	log.Selected = &selected

	return decision{state: model.AllocationStateActive, winner: winner, log: log}
}

// winnerGroup 有 Unlimited 时为全部 Unlimited，否则为并列最高分的全部成员
func winnerGroup(scored []scoredCandidate) []scoredCandidate {
	best := scored[0].score
	for _, c := range scored[1:] {
		if c.score.Cmp(best) > 0 {
			best = c.score
		}
	}

	group := make([]scoredCandidate, 0, 1)
	for _, c := range scored {
		if c.score.Equal(best) {
			group = append(group, c)
		}
	}
	return group
}
