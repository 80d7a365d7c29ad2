package domain

import "errors"

var (
	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData возвращается когда баров меньше, чем нужно для расчета
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedBars возвращается при несогласованных OHLC данных
	ErrMalformedBars = errors.New("malformed bars")

	// ErrFeedUnavailable возвращается при недоступности источника котировок
	ErrFeedUnavailable = errors.New("market data feed unavailable")

	// ErrNotifier возвращается при ошибке отправки уведомления
	ErrNotifier = errors.New("notification sink error")

	// ErrAIFilter возвращается при ошибке AI фильтра качества
	ErrAIFilter = errors.New("AI quality filter error")

	// ErrStateCorruption нарушение инварианта состояния сессии, цикл должен остановиться
	ErrStateCorruption = errors.New("session state corruption")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrUnknownRegime возвращается при разборе неизвестной метки режима
	ErrUnknownRegime = errors.New("unknown regime label")
)
