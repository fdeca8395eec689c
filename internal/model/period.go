package model

import "fmt"

// Period 一个分配周期（年, 月）
// 年份的含义由配置的日历决定（默认伊朗历），引擎本身不关心
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func NewPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

// Before 按时间先后比较
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%d/%02d", p.Year, p.Month)
}
