package handler

import "github.com/go-telegram/bot"

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/rp", bot.MatchTypePrefix, h.handleSendPacket)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/redpacket", bot.MatchTypePrefix, h.handleSendPacket)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/balance", bot.MatchTypePrefix, h.handleBalance)

	// Claim button
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, claimCallbackPrefix, bot.MatchTypePrefix, h.handleClaimPacket)
}
