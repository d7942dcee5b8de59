package trader

import "papertraderv1/internal/model"

// PerformanceSummary aggregates closed-trade statistics for the dashboard.
type PerformanceSummary struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	TotalProfitINR  float64 `json:"total_profit_inr"`
	WinRate         float64 `json:"win_rate"`
	CurrentBalance  float64 `json:"current_balance"`
	StartingBalance float64 `json:"starting_balance"`
	TotalReturn     float64 `json:"total_return"`
}

// Performance computes the summary over the full closed-trade history.
// Breakeven trades count as neither wins nor losses.
func (e *Engine) Performance() (PerformanceSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.loadDoc()
	if err != nil {
		return PerformanceSummary{}, err
	}

	summary := PerformanceSummary{
		CurrentBalance:  model.Round2(doc.Balance),
		StartingBalance: StartBalance,
		TotalReturn:     model.Round2(doc.Balance - StartBalance),
	}
	if len(doc.History) == 0 {
		return summary, nil
	}

	var total float64
	for _, trade := range doc.History {
		switch {
		case trade.ProfitINR > 0:
			summary.WinningTrades++
		case trade.ProfitINR < 0:
			summary.LosingTrades++
		}
		total += trade.ProfitINR
	}
	summary.TotalTrades = len(doc.History)
	summary.TotalProfitINR = model.Round2(total)
	summary.WinRate = model.Round2(float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100)
	return summary, nil
}
