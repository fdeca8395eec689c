package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"saghat/internal/config"
	"saghat/internal/infrastructure/database"
	"saghat/internal/service"

	"github.com/shopspring/decimal"
)

// setupfund 修改基金全局参数，未指定的参数保留当前值
func main() {
	var (
		configFlag       string
		minFeeFlag       string
		maxPeriodsFlag   int
		minRepaymentFlag string
	)

	flag.StringVar(&configFlag, "config", "config/config.yaml", "配置文件路径")
	flag.StringVar(&minFeeFlag, "min-fee", "", "每期最低会费")
	flag.IntVar(&maxPeriodsFlag, "max-periods", 0, "最长还款期数（<=0 保留当前值）")
	flag.StringVar(&minRepaymentFlag, "min-repayment", "", "新分配的每期最低还款额")
	flag.Parse()

	if minFeeFlag == "" && maxPeriodsFlag <= 0 && minRepaymentFlag == "" {
		exitWithError(errors.New("至少需要指定 -min-fee、-max-periods、-min-repayment 之一"))
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		exitWithError(fmt.Errorf("加载配置失败: %w", err))
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		exitWithError(fmt.Errorf("连接数据库失败: %w", err))
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fundService := service.NewFundService(db, cfg)
	current, err := fundService.Get(ctx)
	if err != nil {
		exitWithError(fmt.Errorf("读取基金参数失败: %w", err))
	}

	req := &service.UpdateFundConfigRequest{
		MinPeriodicFee:         current.MinPeriodicFee,
		MaxRepaymentPeriods:    current.MaxRepaymentPeriods,
		MinLoanRepaymentAmount: current.MinLoanRepaymentAmount,
	}
	if minFeeFlag != "" {
		if req.MinPeriodicFee, err = decimal.NewFromString(minFeeFlag); err != nil {
			exitWithError(fmt.Errorf("-min-fee 格式错误: %w", err))
		}
	}
	if maxPeriodsFlag > 0 {
		req.MaxRepaymentPeriods = maxPeriodsFlag
	}
	if minRepaymentFlag != "" {
		if req.MinLoanRepaymentAmount, err = decimal.NewFromString(minRepaymentFlag); err != nil {
			exitWithError(fmt.Errorf("-min-repayment 格式错误: %w", err))
		}
	}

	updated, err := fundService.Update(ctx, req)
	if err != nil {
		exitWithError(err)
	}

	fmt.Printf("基金参数已更新: min_periodic_fee=%s max_repayment_periods=%d min_loan_repayment_amount=%s\n",
		updated.MinPeriodicFee, updated.MaxRepaymentPeriods, updated.MinLoanRepaymentAmount)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
