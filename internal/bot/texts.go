package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/fingames/core/telegram/format"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/registration"
)

const (
	textWelcome      = "Привет 👋 Добро пожаловать на ФинИгры!\nВыберите игру:"
	textPickGame     = "Выберите игру кнопкой ниже 👇"
	textPickSlot     = "Выберите время кнопкой под сообщением 👆"
	textSlotFull     = "😔 Это время уже занято. Выберите другое:"
	textNoCapacity   = "😔 На эту игру больше нет свободных мест."
	textStaleButton  = "Эта кнопка устарела. Нажмите /start, чтобы начать заново."
	textCancelled    = "Регистрация отменена. Нажмите /start, чтобы начать заново."
	textFailure      = "⚠️ Что-то пошло не так. Попробуйте ещё раз чуть позже."
	textTooFast      = "⏳ Слишком много запросов, попробуйте через секунду."
	textNoOwn        = "📭 У вас пока нет регистраций. Нажмите /start, чтобы записаться."
	textEmpty        = "📭 Пока нет регистраций."
	textRedeemUsage  = "⚠️ Использование: /use FG-XXXXXX"
	textListTitle    = "📋 Список регистраций:"
	textActiveTitle  = "🟢 Активные регистрации:"
	textCancelButton = "❌ Отмена"
)

const (
	textHelp = "ℹ️ Как записаться на ФинИгры:\n" +
		"1. Нажмите /start и выберите игру.\n" +
		"2. Выберите удобное время.\n" +
		"3. Получите уникальный ID и покажите его организатору.\n\n" +
		"/my - ваши регистрации\n" +
		"/cancel - отменить незавершённую регистрацию"

	textModeratorHelp = "\n\nДля организаторов:\n" +
		"/list - все регистрации\n" +
		"/active - неиспользованные ID\n" +
		"/use FG-XXXXXX - отметить ID\n" +
		"/export - выгрузка CSV\n" +
		"/stats - заполненность слотов"
)

func statusLabel(r registration.Registration) string {
	if r.Used {
		return "❌ Использован"
	}
	return "✅ Активен"
}

func slotLine(r registration.Registration) string {
	if !r.HasSlot() {
		return ""
	}
	return "\nВремя: " + r.SlotDate + " " + r.SlotTime
}

func gameLabel(cat *catalog.Catalog, name string) string {
	if g, ok := cat.Game(name); ok {
		return g.Label()
	}
	return name
}

// registeredText is sent as MarkdownV2 so the code can be copied with a tap.
func registeredText(r registration.Registration, label string) string {
	return format.V2("✅ Регистрация завершена!\nИгра: "+label+slotLine(r)+"\nВаш уникальный ID: ") +
		format.Code(r.VoucherCode) +
		format.V2("\n\nПокажите этот код организатору.")
}

func duplicateText(r registration.Registration, label string) string {
	return format.V2("⚠️ Вы уже зарегистрированы в этой игре!\nИгра: "+label+slotLine(r)+"\nВаш ID: ") +
		format.Code(r.VoucherCode) +
		format.V2("\nСтатус: "+statusLabel(r))
}

func chooseSlotText(label string) string {
	return "Игра: " + label + "\nВыберите время:"
}

func ownListText(cat *catalog.Catalog, regs []registration.Registration) string {
	var b strings.Builder
	b.WriteString(format.V2("🎟 Ваши регистрации:\n"))
	for _, r := range regs {
		b.WriteString("\n")
		b.WriteString(format.Code(r.VoucherCode))
		line := " → " + gameLabel(cat, r.Game)
		if r.HasSlot() {
			line += " → " + r.SlotDate + " " + r.SlotTime
		}
		line += " → " + statusLabel(r)
		b.WriteString(format.V2(line))
	}
	return b.String()
}

func moderatorNoticeText(r registration.Registration, label string) string {
	text := "✅ Новый ID\nИгра: " + label + slotLine(r) + "\nID: " + r.VoucherCode
	if r.ParticipantName != "" {
		text += "\nУчастник: " + r.ParticipantName
	}
	return text
}

func redeemedText(code, game string) string {
	return fmt.Sprintf("✅ ID %s отмечен как использованный (игра: %s).", code, game)
}

func notFoundText(code string) string {
	return fmt.Sprintf("❌ ID %s не найден.", code)
}

func alreadyUsedText(code string) string {
	return fmt.Sprintf("⚠️ ID %s уже был использован ранее!", code)
}

func exportCaption(rows int) string {
	return fmt.Sprintf("📦 Выгрузка регистраций: %d", rows)
}
