// Package i18n maps the API's English status messages onto the display
// language shown to users. Unmapped messages fall back to a generic text.
package i18n

const Fallback = "Что-то пошло не так. Попробуйте ещё раз."

var messageMap = map[string]string{
	"Unauthorized":                           "Сначала войдите в систему.",
	"Forbidden":                              "Нет доступа к выбранному проекту.",
	"Invalid credentials":                    "Неверный email или пароль.",
	"Email already exists":                   "Этот email уже зарегистрирован.",
	"Missing required fields":                "Заполните все поля.",
	"Invalid email":                          "Некорректный email.",
	"Password must be at least 8 characters": "Пароль должен быть не короче 8 символов.",
	"Missing projectId":                      "Не указан проект.",
	"Missing id":                             "Не хватает данных для запроса.",
	"Task not found":                         "Задача не найдена.",
	"Project not found":                      "Проект не найден.",
	"User not found":                         "Пользователь не найден.",
	"Method Not Allowed":                     "Недопустимый метод запроса.",
}

// Humanize picks the display message for a status code and message pair.
func Humanize(statusCode int, statusMessage string) string {
	// Auth failures always read the same regardless of the exact message.
	if statusCode == 401 {
		return messageMap["Unauthorized"]
	}
	if statusCode == 403 {
		return messageMap["Forbidden"]
	}

	if mapped, ok := messageMap[statusMessage]; ok {
		return mapped
	}
	return Fallback
}
