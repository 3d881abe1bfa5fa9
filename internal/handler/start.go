package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/emberworks/hongbao/internal/middleware"
)

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("👋 你好，%s！", user.DisplayName()))
	lines = append(lines, "")
	lines = append(lines, "🧧 我是红包机器人，把我拉进群就可以发红包了。")
	lines = append(lines, "")
	lines = append(lines, "常用命令：")
	lines = append(lines, "/rp 金额 份数 — 发一个拼手气红包")
	lines = append(lines, "/rp 金额 份数 fixed — 发一个平均分红包")
	lines = append(lines, "/rp 金额 @用户 — 发一个专属红包")
	lines = append(lines, "/balance — 查询余额和最近记录")

	h.reply(ctx, b, msg, strings.Join(lines, "\n"))
}
