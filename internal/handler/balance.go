package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/emberworks/hongbao/internal/config"
	"github.com/emberworks/hongbao/internal/middleware"
)

func (h *Handler) handleBalance(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	balance, err := h.wallets.GetBalance(ctx, user.ID)
	if err != nil {
		slog.Error("get balance", "user_id", user.ID, "error", err)
		h.reply(ctx, b, msg, "查询余额失败，请稍后重试")
		return
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("💰 当前余额：%d %s", balance, h.cfg.CurrencyName))

	txs, err := h.wallets.ListTransactions(ctx, user.ID, config.HistoryPageSize)
	if err != nil {
		slog.Error("list transactions", "user_id", user.ID, "error", err)
	} else if len(txs) > 0 {
		lines = append(lines, "", "📜 最近记录：")
		for _, t := range txs {
			sign := "+"
			if t.Amount < 0 {
				sign = ""
			}
			lines = append(lines, fmt.Sprintf("%s%d  %s", sign, t.Amount, t.Description))
		}
	}

	h.reply(ctx, b, msg, strings.Join(lines, "\n"))
}
