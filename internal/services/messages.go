package services

import (
	"fmt"
	"html"
	"strings"

	"ussbot/internal/models"
)

// Все ответы бота уходят в ЛС; в общий чат не пишем ни слова.

const (
	msgAssignOnlyGroup = "Назначение задачи доступно в группах по реплаю. Откройте меню в ЛС: /menu"
	msgAssignHowTo     = "Пожалуйста, ответьте <b>реплаем</b> на сообщение сотрудника (или укажите @username) и отправьте: <code>/assign текст задачи</code>."
	msgAssignNeedText  = "Добавьте текст задачи: <code>/assign текст задачи</code>. Можно просто прислать текст следующим сообщением сюда, в ЛС."
	msgAssignAdminOnly = "Назначать задачи в этой группе могут только администраторы."
	msgDoneUsage       = "Укажите ID задачи: <code>/done id</code>"
	msgDoneOK          = "Готово! Задача закрыта ✅"
	msgDoneNotFound    = "Не нашёл такую задачу."
	msgNoOpenTasks     = "У вас нет открытых задач ✨"
	msgActionFailed    = "Не получилось выполнить действие: хранилище недоступно. Попробуйте ещё раз."
)

func msgGreeting(tz string) string {
	return "Привет! Я помогаю назначать задачи в группах и напоминать сотрудникам по будням в 10:00 (" + tz + ").\n" +
		"В общий чат я ничего писать не буду — всё уходит в ЛС."
}

func msgMenu() string {
	return "<b>Меню</b>\n\n" +
		"• Назначение задач выполняется <b>в группе</b> по реплаю: ответьте на сообщение сотрудника и отправьте\n" +
		"  <code>/assign текст задачи</code>. Команда в группе будет удалена; в общий чат бот ничего не пишет.\n\n" +
		"• В личке можно смотреть свои задачи и помечать их выполненными."
}

func msgNewTask(id int64, text string) string {
	return fmt.Sprintf("🆕 Вам назначена задача <b>#%d</b>:\n— %s", id, html.EscapeString(text))
}

func msgAssignConfirm(id int64, assignee models.Peer) string {
	return fmt.Sprintf("✅ Задача #%d назначена пользователю %s и отправлена ему в ЛС.",
		id, html.EscapeString(displayName(assignee)))
}

func msgAssignUnreachable(id int64, assignee models.Peer) string {
	return fmt.Sprintf(
		"Задача #%d создана, но не удалось отправить ЛС исполнителю.\nПопросите %s сначала написать мне.",
		id, mention(assignee))
}

func msgAssignPendingHandle(id int64, handle string) string {
	return fmt.Sprintf(
		"✅ Задача #%d записана на @%s. Я доставлю её в ЛС, как только @%s впервые напишет мне.",
		id, html.EscapeString(handle), html.EscapeString(handle))
}

func msgBackfilled(n int64) string {
	return fmt.Sprintf("Пока вас не было, вам назначили задач: %d. Вот открытые:", n)
}

func renderTaskList(header string, tasks []models.Task) string {
	lines := []string{header}
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("#%d: %s", t.ID, html.EscapeString(t.Text)))
	}
	lines = append(lines, "", "Чтобы закрыть: <code>/done id</code>")
	return strings.Join(lines, "\n")
}

func renderMyTasks(tasks []models.Task) string {
	return renderTaskList("<b>Ваши открытые задачи:</b>", tasks)
}

func renderDigest(tasks []models.Task) string {
	return renderTaskList("🔔 <b>Ежедневное напоминание</b>\nВаши открытые задачи:", tasks)
}

func displayName(p models.Peer) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Handle != "" {
		return "@" + p.Handle
	}
	return fmt.Sprintf("id%d", p.ID)
}

// mention renders a clickable reference even when the person has no
// username.
func mention(p models.Peer) string {
	if p.ID != 0 {
		return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, p.ID, html.EscapeString(displayName(p)))
	}
	return html.EscapeString(displayName(p))
}
