package models

import "errors"

// Ошибки предметной области. Проверяются через errors.Is; HTTP-слой
// отображает их в коды ответа.
var (
	// ErrNotFound: нет подходящей подписки, плана или платёжной записи.
	ErrNotFound = errors.New("not found")
	// ErrConflict: у пользователя уже есть действующая подписка.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition: переход не разрешён из текущего состояния.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidPlan: неизвестный идентификатор плана.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrValidation: некорректные входные данные.
	ErrValidation = errors.New("validation error")
	// ErrStorage: сбой хранилища, вызывающий может повторить запрос.
	ErrStorage = errors.New("storage error")
)

// IsDomain сообщает, относится ли err к одной из ошибок предметной области.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrConflict,
		ErrInvalidTransition,
		ErrInvalidPlan,
		ErrValidation,
		ErrStorage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
