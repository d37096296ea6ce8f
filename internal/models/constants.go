package models

import "time"

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

const (
	// SlotStep шаг сетки свободных слотов
	SlotStep = 15 * time.Minute

	// DefaultOpeningTime время начала, подставляемое в черновик без выбранного слота
	DefaultOpeningTime = "09:00"

	// VerificationCodeLength длина кода подтверждения
	VerificationCodeLength = 6

	// DefaultMaxDaysAhead насколько далеко вперед можно записаться
	DefaultMaxDaysAhead = 90

	// DefaultVerificationAttempts попыток ввода кода в окне
	DefaultVerificationAttempts = 5

	// DefaultVerificationWindow окно ограничения попыток подтверждения
	DefaultVerificationWindow = 15 * time.Minute

	// ServicesCacheTTL время жизни кэша каталога услуг в памяти
	ServicesCacheTTL = 30 * time.Minute

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// DefaultExportRangeDays период экспорта по умолчанию
	DefaultExportRangeDays = 30
)
