package telegram

import (
	"fmt"
	"strings"
)

// CommandArgs представляет распарсенные аргументы команды
type CommandArgs struct {
	Command    string
	Instrument string
	Raw        []string
}

// Команды бота
const (
	CmdStart    = "start"
	CmdHelp     = "help"
	CmdStatus   = "status"
	CmdBreakers = "breakers"
	CmdRecheck  = "recheck"
)

// ParseCommand парсит "/status@rijin_bot nifty" в команду и инструмент
func ParseCommand(text string) (*CommandArgs, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, fmt.Errorf("not a command: %q", text)
	}

	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	args := &CommandArgs{
		Command: strings.ToLower(command),
		Raw:     fields[1:],
	}
	if len(args.Raw) > 0 {
		args.Instrument = strings.ToUpper(args.Raw[0])
	}
	return args, nil
}
