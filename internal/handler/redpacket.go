package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/emberworks/hongbao/internal/config"
	"github.com/emberworks/hongbao/internal/domain"
	"github.com/emberworks/hongbao/internal/middleware"
	"github.com/emberworks/hongbao/internal/service"
	"github.com/emberworks/hongbao/internal/telegram"
)

const claimCallbackPrefix = "redpacket:claim:"

const sendPacketUsage = "用法: /rp 金额 [份数或目标用户] [fixed] [留言...]"

// sendArgs is the parsed form of a /rp command.
type sendArgs struct {
	TotalAmount    int64
	SlotCount      int
	Mode           domain.PacketMode
	TargetUserID   *int64
	TargetUsername string
	Note           string
}

// parseSendArgs parses the /rp argument list. Returns the parsed arguments
// or a user-facing error message.
//
// Grammar: /rp <amount> [slots | @user | userID] [fixed] [note...].
// A numeric second argument at or above the ID threshold is a target user
// ID; an @mention makes an exclusive packet for that user.
func parseSendArgs(fields []string) (*sendArgs, string) {
	if len(fields) == 0 {
		return nil, sendPacketUsage
	}

	amount, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || amount <= 0 {
		return nil, "金额必须是正整数"
	}
	if amount > config.MaxPacketAmount {
		return nil, fmt.Sprintf("单个红包金额不能超过 %d", config.MaxPacketAmount)
	}

	if len(fields) < 2 {
		return nil, "请提供份数或目标用户"
	}

	second := fields[1]
	if strings.HasPrefix(second, "@") {
		username := strings.TrimPrefix(second, "@")
		if username == "" {
			return nil, "请提供份数或目标用户"
		}
		return &sendArgs{
			TotalAmount:    amount,
			SlotCount:      1,
			Mode:           domain.ModeExclusive,
			TargetUsername: username,
			Note:           strings.Join(fields[2:], " "),
		}, ""
	}

	value, err := strconv.ParseInt(second, 10, 64)
	if err != nil || value <= 0 {
		return nil, "份数必须是正整数"
	}
	if value >= config.ExclusiveTargetIDThreshold {
		target := value
		return &sendArgs{
			TotalAmount:  amount,
			SlotCount:    1,
			Mode:         domain.ModeExclusive,
			TargetUserID: &target,
			Note:         strings.Join(fields[2:], " "),
		}, ""
	}
	if value > config.MaxSlotCount {
		return nil, fmt.Sprintf("份数不能超过 %d", config.MaxSlotCount)
	}

	args := &sendArgs{
		TotalAmount: amount,
		SlotCount:   int(value),
		Mode:        domain.ModeRandom,
	}
	rest := fields[2:]
	if len(rest) > 0 && strings.EqualFold(rest[0], "fixed") {
		args.Mode = domain.ModeFixed
		rest = rest[1:]
	}
	args.Note = strings.Join(rest, " ")
	return args, ""
}

func (h *Handler) handleSendPacket(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	chatID := msg.Chat.ID

	fields := strings.Fields(msg.Text)
	args, errText := parseSendArgs(fields[1:])

	// Replying to someone makes it an exclusive packet for them, with
	// everything after the amount treated as the note.
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && len(fields) >= 2 {
		amount, err := strconv.ParseInt(fields[1], 10, 64)
		if err == nil && amount > 0 && amount <= config.MaxPacketAmount {
			target := msg.ReplyToMessage.From.ID
			args = &sendArgs{
				TotalAmount:  amount,
				SlotCount:    1,
				Mode:         domain.ModeExclusive,
				TargetUserID: &target,
				Note:         strings.Join(fields[2:], " "),
			}
			errText = ""
		}
	}

	if errText != "" {
		h.reply(ctx, b, msg, errText)
		return
	}

	if args.TargetUsername != "" {
		target, err := h.userService.ResolveUsername(ctx, args.TargetUsername)
		if err != nil {
			h.reply(ctx, b, msg, "未找到目标用户，请确认对方已与机器人有过对话")
			return
		}
		args.TargetUserID = &target.ID
	}

	if args.Note == "" {
		args.Note = config.DefaultPacketNotes[rand.IntN(len(config.DefaultPacketNotes))]
	}

	packet, err := h.packetService.Create(ctx, service.CreateParams{
		CreatorID:    user.ID,
		ChatID:       chatID,
		TotalAmount:  args.TotalAmount,
		SlotCount:    args.SlotCount,
		Mode:         args.Mode,
		TargetUserID: args.TargetUserID,
		TTL:          h.cfg.PacketTTL(),
		Note:         args.Note,
	})
	if err != nil {
		h.reply(ctx, b, msg, h.createErrorText(err))
		return
	}

	caption := h.packetCaption(packet, user.DisplayName())
	keyboard := telegram.InlineKeyboard(
		telegram.ButtonRow(
			telegram.InlineButton("🧧 抢红包", fmt.Sprintf("%s%d", claimCallbackPrefix, packet.ID)),
		),
	)
	sent, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        caption,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		slog.Error("send packet message", "packet_id", packet.ID, "error", err)
		return
	}

	if err := h.packetService.AttachMessage(ctx, packet.ID, chatID, sent.ID); err != nil {
		slog.Error("attach packet message", "packet_id", packet.ID, "error", err)
	}
}

func (h *Handler) createErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "余额不足，无法发出这个红包"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "金额必须大于 0"
	case errors.Is(err, domain.ErrInvalidSlotCount):
		return "份数必须大于 0"
	case errors.Is(err, domain.ErrAmountBelowSlots):
		return "非专属红包总金额必须大于等于份数"
	default:
		slog.Error("create packet", "error", err)
		return "发送红包失败，请稍后重试"
	}
}

func (h *Handler) handleClaimPacket(ctx context.Context, b *bot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		h.answerAlert(ctx, b, cb.ID, "无法获取用户信息")
		return
	}

	packetID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, claimCallbackPrefix), 10, 64)
	if err != nil {
		h.answerAlert(ctx, b, cb.ID, "无效的红包信息")
		return
	}

	result, err := h.packetService.Claim(ctx, packetID, user.ID)
	if err != nil {
		h.answerAlert(ctx, b, cb.ID, h.claimErrorText(err))
		if errors.Is(err, domain.ErrPacketExpired) {
			h.updateExpiredMessage(ctx, b, cb, packetID)
		}
		return
	}

	h.answerAlert(ctx, b, cb.ID, fmt.Sprintf("🎉 你抢到了 %d %s！", result.Amount, h.cfg.CurrencyName))
	if result.Finished {
		h.updateFinishedMessage(ctx, b, cb, packetID)
	}
}

func (h *Handler) claimErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrPacketNotFound):
		return "红包不存在"
	case errors.Is(err, domain.ErrPacketClosed):
		return "红包已结束"
	case errors.Is(err, domain.ErrPacketExpired):
		return "红包已过期"
	case errors.Is(err, domain.ErrNotEligible):
		return "这是专属红包"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return "你已经抢过这个红包了"
	case errors.Is(err, domain.ErrPacketEmpty):
		return "红包已经被抢完啦"
	case errors.Is(err, domain.ErrClaimContention):
		return "人太多啦，请再试一次"
	default:
		slog.Error("claim packet", "error", err)
		return "抢红包失败，请稍后重试"
	}
}

func (h *Handler) packetCaption(p *domain.Packet, senderName string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("🧧 %s 发了一个红包", senderName))
	lines = append(lines, fmt.Sprintf("💰 总额：%d %s（%d 份，%s）",
		p.TotalAmount, h.cfg.CurrencyName, p.SlotCount, modeLabel(p.Mode)))
	lines = append(lines, fmt.Sprintf("⏰ 有效期：%d 分钟", h.cfg.PacketTTLMinutes))
	if p.Note != "" {
		lines = append(lines, fmt.Sprintf("📝 留言：%s", p.Note))
	}
	return strings.Join(lines, "\n")
}

func modeLabel(mode domain.PacketMode) string {
	switch mode {
	case domain.ModeFixed:
		return "平均分"
	case domain.ModeExclusive:
		return "专属红包"
	default:
		return "拼手气"
	}
}

// updateFinishedMessage rewrites the packet message once the last share is
// gone, removing the claim button.
func (h *Handler) updateFinishedMessage(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, packetID int64) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}
	packet, err := h.packetService.GetPacket(ctx, packetID)
	if err != nil {
		return
	}
	claims, err := h.packetService.ListClaims(ctx, packetID)
	if err != nil {
		return
	}

	var lines []string
	lines = append(lines, "✅ 红包已被领完")
	lines = append(lines, fmt.Sprintf("💰 总额：%d %s，已全部派发", packet.TotalAmount, h.cfg.CurrencyName))
	lines = append(lines, fmt.Sprintf("👥 领取人数：%d / %d", packet.TakenCount, packet.SlotCount))
	if packet.Mode == domain.ModeRandom && len(claims) > 1 {
		best := claims[0]
		for _, c := range claims[1:] {
			if c.Amount > best.Amount {
				best = c
			}
		}
		lines = append(lines, fmt.Sprintf("🏆 手气最佳：%d %s", best.Amount, h.cfg.CurrencyName))
	}

	h.editMessage(ctx, b, msg, strings.Join(lines, "\n"))
}

func (h *Handler) updateExpiredMessage(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, packetID int64) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}
	packet, err := h.packetService.GetPacket(ctx, packetID)
	if err != nil {
		return
	}

	var lines []string
	lines = append(lines, "⏰ 红包已过期")
	lines = append(lines, fmt.Sprintf("💰 已领取：%d / %d %s，剩余已退回",
		packet.TakenAmount, packet.TotalAmount, h.cfg.CurrencyName))

	h.editMessage(ctx, b, msg, strings.Join(lines, "\n"))
}

func (h *Handler) editMessage(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
	})
	if err != nil {
		slog.Warn("edit packet message", "chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID: msg.ID,
		},
	})
	if err != nil {
		slog.Warn("send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (h *Handler) answerAlert(ctx context.Context, b *bot.Bot, callbackID, text string) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       true,
	})
	if err != nil {
		slog.Warn("answer callback", "error", err)
	}
}
