package calendar

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

const (
	Jalali    = "jalali"
	Gregorian = "gregorian"
)

var tehran = mustLoadTehran()

func mustLoadTehran() *time.Location {
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		// 系统缺少时区数据库时退回固定偏移 +03:30
		return time.FixedZone("IRST", 3*3600+30*60)
	}
	return loc
}

// YearMonth 返回 t 所在的（年, 月）
// jalali 以德黑兰时区换算为伊朗历，gregorian 使用 UTC
func YearMonth(t time.Time, system string) (int, int, error) {
	switch system {
	case Jalali:
		pt := ptime.New(t.In(tehran))
		return pt.Year(), int(pt.Month()), nil
	case Gregorian:
		u := t.UTC()
		return u.Year(), int(u.Month()), nil
	default:
		return 0, 0, fmt.Errorf("不支持的日历: %q", system)
	}
}
