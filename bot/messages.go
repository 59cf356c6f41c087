package bot

import (
	"fmt"
	"strings"

	"github.com/akhmetov/weighbot/storage"
)

// Reply texts shown to drivers. All user-facing copy lives here so handlers
// stay free of string literals.

const (
	msgRegistrationStart = "👋 Добро пожаловать в бот учёта взвешиваний!\n\nДля начала работы нужно зарегистрироваться.\nВведите ваше ФИО:"
	msgAskPersonalPhone  = "Введите ваш личный номер телефона:"
	msgAskTruck          = "Введите номер вашей машины:"

	msgAskClient      = "Введите название клиента:"
	msgClientTooShort = "❌ Название клиента должно содержать минимум 2 символа. Попробуйте ещё раз:"
	msgAskWeight      = "Введите текущий вес (кг):"
	msgAskPhoto       = "Отправьте фото чека с весов или напишите «пропустить»:"
	msgConfirmPrompt  = "Ответьте «да» для сохранения отчёта или «нет» для отмены."

	msgReportCancelled = "❌ Отчёт отменён.\n\nОтправьте 0 для возврата в меню."
	msgAskNewTruck     = "Введите новый номер машины:"

	msgStatsPeriodPrompt = "📊 Выберите период статистики:\n\n1 — Сегодня\n2 — Последние 7 дней\n3 — Последние 30 дней\n4 — За всё время\n\n0 — Назад в меню"
	msgStatsBadPeriod    = "❌ Неизвестный период. Отправьте цифру от 1 до 4 или 0 для выхода в меню."
	msgStatsEmpty        = "📊 Данных за выбранный период нет."

	msgMenuUnregistered = "Вы ещё не зарегистрированы.\nОтправьте любое сообщение, чтобы начать регистрацию."

	msgPersistenceError = "⚠️ Временная ошибка при сохранении данных. Ваш прогресс не потерян, попробуйте ещё раз."
	msgInternalError    = "⚠️ Что-то пошло не так. Отправьте 0, чтобы вернуться в меню."

	msgPhotoBadRef   = "❌ Не удалось загрузить фото. Отправьте его ещё раз или напишите «пропустить»:"
	msgPhotoTooLarge = "❌ Фото слишком большое. Отправьте фото меньшего размера или напишите «пропустить»:"
	msgPhotoNotImage = "❌ Файл не похож на изображение. Отправьте фото или напишите «пропустить»:"
)

func msgRegistrationNameOK(name string) string {
	return fmt.Sprintf("Отлично, %s!\n%s", name, msgAskPersonalPhone)
}

func msgRegistrationDone(name, truck string) string {
	return fmt.Sprintf("✅ Регистрация завершена!\n\n👤 %s\n🚛 %s\n\n%s", name, truck, menuBody)
}

const menuBody = "Главное меню:\n1 — Новый отчёт о взвешивании\n2 — Сменить машину\n3 — Перерегистрация\n4 — Статистика"

func msgMainMenu(name, truck string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "👤 %s\n", name)
	}
	if truck != "" {
		fmt.Fprintf(&b, "🚛 %s\n", truck)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("📋 " + menuBody)
	return b.String()
}

func msgUnknownCommand(name, truck string) string {
	return "❓ Неизвестная команда.\n\n" + msgMainMenu(name, truck)
}

func msgTruckUpdated(truck string) string {
	return fmt.Sprintf("✅ Номер машины обновлён: %s\n\nОтправьте 0 для возврата в меню.", truck)
}

func msgReportSaved(w *storage.Weighing) string {
	return fmt.Sprintf(
		"✅ Отчёт сохранён!\n\n🚛 %s\n🏢 %s\n⚖️ Вес: %s кг\n📊 Разница: %s кг\n\nОтправьте 0 для возврата в меню.",
		w.TruckNumber, w.ClientName, formatWeight(w.CurrentWeight), formatWeight(w.WeightDifference),
	)
}

func msgConfirmReport(d ReportDraft) string {
	photo := "нет"
	if d.PhotoReceived {
		photo = "есть"
	}
	return fmt.Sprintf(
		"📋 Проверьте отчёт:\n\n🚛 Машина: %s\n🏢 Клиент: %s\n⚖️ Текущий вес: %s кг\n⚖️ Предыдущий вес: %s кг\n📊 Разница: %s кг\n📷 Фото: %s\n\nСохранить? (да/нет)",
		d.TruckNumber, d.ClientName,
		formatWeight(d.CurrentWeight), formatWeight(d.PreviousWeight), formatWeight(d.WeightDifference),
		photo,
	)
}

// formatWeight renders kilograms without a trailing ".0" for whole values.
func formatWeight(w float64) string {
	s := fmt.Sprintf("%.1f", w)
	return strings.TrimSuffix(s, ".0")
}
