package engine

import "github.com/kirillm/rijin-bot/internal/domain"

// admissionLog допуски текущей сессии по категориям и типам дня
type admissionLog struct {
	byCategory map[string]int
	byRegime   map[string]map[domain.RegimeLabel]int
	total      int
}

func newAdmissionLog() *admissionLog {
	return &admissionLog{
		byCategory: make(map[string]int),
		byRegime:   make(map[string]map[domain.RegimeLabel]int),
	}
}

// Record учитывает допуск
func (a *admissionLog) Record(category string, regime domain.RegimeLabel) {
	a.byCategory[category]++
	if a.byRegime[category] == nil {
		a.byRegime[category] = make(map[domain.RegimeLabel]int)
	}
	a.byRegime[category][regime]++
	a.total++
}

func (a *admissionLog) Admitted(category string) int {
	return a.byCategory[category]
}

func (a *admissionLog) AdmittedIn(category string, regime domain.RegimeLabel) int {
	return a.byRegime[category][regime]
}

func (a *admissionLog) Total() int {
	return a.total
}
