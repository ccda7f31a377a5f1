package models

const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusClosed    = "closed"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Шаги сценария бронирования
const (
	StepIdle              = "idle"
	StepDateChosen        = "date_chosen"
	StepDateAndTimeChosen = "date_and_time_chosen"
	StepSubmitting        = "submitting"
)

// Результат последней отправки
const (
	OutcomeNone             = ""
	OutcomeConfirmed        = "confirmed"
	OutcomeValidationFailed = "validation_failed"
	OutcomeSubmissionFailed = "submission_failed"
)

// Поля формы, обязательные для отправки
const (
	FieldDate    = "date"
	FieldTime    = "time"
	FieldName    = "name"
	FieldEmail   = "email"
	FieldMessage = "message"
)

const (
	// DefaultSessionTTL время жизни сессии бронирования в Redis
	DefaultSessionTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultMeetingDuration длительность встречи по умолчанию, минут
	DefaultMeetingDuration = 30

	// DefaultStepMinutes шаг генерации слотов
	DefaultStepMinutes = 30

	// DefaultMaxCalendarDays сколько дней календаря отдаётся за один запрос
	DefaultMaxCalendarDays = 62

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// SubmitRateLimit количество отправок формы в окне
	SubmitRateLimit = 5

	// SubmitRateWindow окно ограничения частоты отправок
	SubmitRateWindow = 60 * 60 // 1 час в секундах
)
