package telegram

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthManager управляет правами доступа и rate limiting команд
type AuthManager struct {
	mu        sync.Mutex
	admins    map[int64]bool
	whitelist map[int64]bool
	limiters  map[int64]*rate.Limiter
	perMinute int
}

// NewAuthManager создает менеджер авторизации; пустой whitelist закрывает бота для всех
func NewAuthManager(whitelist, admins []int64, perMinute int) *AuthManager {
	if perMinute <= 0 {
		perMinute = 20
	}
	am := &AuthManager{
		admins:    make(map[int64]bool),
		whitelist: make(map[int64]bool),
		limiters:  make(map[int64]*rate.Limiter),
		perMinute: perMinute,
	}
	for _, id := range whitelist {
		am.whitelist[id] = true
	}
	for _, id := range admins {
		am.admins[id] = true
		am.whitelist[id] = true
	}
	return am
}

// IsAllowed проверяет, разрешен ли доступ пользователю
func (am *AuthManager) IsAllowed(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.whitelist[userID]
}

// IsAdmin проверяет, является ли пользователь администратором; без списка админов админы все из whitelist
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	if len(am.admins) == 0 {
		return am.whitelist[userID]
	}
	return am.admins[userID]
}

// CheckRateLimit ограничивает частоту команд от пользователя
func (am *AuthManager) CheckRateLimit(userID int64) error {
	am.mu.Lock()
	limiter, ok := am.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(am.perMinute)), am.perMinute)
		am.limiters[userID] = limiter
	}
	am.mu.Unlock()

	if !limiter.Allow() {
		return fmt.Errorf("too many commands, limit is %d per minute", am.perMinute)
	}
	return nil
}
