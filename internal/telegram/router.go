package telegram

import (
	"context"
	"html"
)

// CommandHandler представляет обработчик команды
type CommandHandler func(ctx context.Context, args *CommandArgs) (string, error)

// Router маршрутизирует команды к обработчикам
type Router struct {
	handlers      map[string]CommandHandler
	adminCommands map[string]bool
	authManager   *AuthManager
}

// NewRouter создает новый роутер
func NewRouter(authManager *AuthManager) *Router {
	return &Router{
		handlers:      make(map[string]CommandHandler),
		adminCommands: make(map[string]bool),
		authManager:   authManager,
	}
}

// RegisterHandler регистрирует обработчик команды
func (r *Router) RegisterHandler(command string, handler CommandHandler) {
	r.handlers[command] = handler
}

// RegisterAdminHandler регистрирует обработчик с требованием админских прав
func (r *Router) RegisterAdminHandler(command string, handler CommandHandler) {
	r.adminCommands[command] = true
	r.handlers[command] = handler
}

// HandleCommand обрабатывает команду и возвращает HTML ответ; пустой ответ означает молчание
func (r *Router) HandleCommand(ctx context.Context, userID int64, text string) (string, error) {
	if !r.authManager.IsAllowed(userID) {
		return "", nil
	}
	if err := r.authManager.CheckRateLimit(userID); err != nil {
		return formatError(err), nil
	}

	args, err := ParseCommand(text)
	if err != nil {
		return formatError(err), nil
	}

	if r.adminCommands[args.Command] && !r.authManager.IsAdmin(userID) {
		return "⛔ Admin rights required", nil
	}

	handler, exists := r.handlers[args.Command]
	if !exists {
		return "❓ Unknown command /" + html.EscapeString(args.Command) + ". Use /help", nil
	}

	response, err := handler(ctx, args)
	if err != nil {
		return formatError(err), err
	}
	return response, nil
}

func formatError(err error) string {
	return "❌ " + html.EscapeString(err.Error())
}
