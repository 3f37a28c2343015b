package models

import "time"

// PositionData - открытая позиция в снапшоте терминала
type PositionData struct {
	ID           string    `json:"id"` // тикет терминала, уникален в пределах аккаунта
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	Side         Side      `json:"side"`
	EntryPrice   float64   `json:"entryPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	StopLoss     float64   `json:"stopLoss"`
	TakeProfit   float64   `json:"takeProfit"`
	Profit       float64   `json:"profit"`
	Swap         float64   `json:"swap"`
	Commission   float64   `json:"commission"`
	Magic        int64     `json:"magic"`
	OpenTime     time.Time `json:"openTime"`
	Comment      string    `json:"comment,omitempty"`
	Label        string    `json:"label,omitempty"`
}

// AccountSnapshot - полное состояние аккаунта терминала на момент времени.
// Timestamp проставляется терминалом, то есть несёт время торгового сервера.
// Сам по себе событий не несёт - события выводит differencer.
type AccountSnapshot struct {
	Timestamp      time.Time      `json:"timestamp"`
	Platform       Platform       `json:"platform"`
	AccountID      string         `json:"accountId"` // логин на стороне терминала
	Broker         string         `json:"broker"`
	Balance        float64        `json:"balance"`
	Equity         float64        `json:"equity"`
	Margin         float64        `json:"margin"`
	FreeMargin     float64        `json:"freeMargin"`
	MarginLevel    float64        `json:"marginLevel"`
	FloatingPnL    float64        `json:"floatingPnL"`
	Currency       string         `json:"currency"`
	Leverage       int            `json:"leverage"`
	Status         string         `json:"status"`
	IsLicenseValid bool           `json:"isLicenseValid"`
	IsPaused       bool           `json:"isPaused"`
	Positions      []PositionData `json:"positions"`
}

// CommandAction - действие, отправляемое терминалу
type CommandAction string

const (
	ActionPause         CommandAction = "PAUSE"
	ActionResume        CommandAction = "RESUME"
	ActionCloseAll      CommandAction = "CLOSE_ALL"
	ActionClosePosition CommandAction = "CLOSE_POSITION"
	ActionStatus        CommandAction = "STATUS"
	ActionOpenPosition  CommandAction = "OPEN_POSITION"
	ActionModify        CommandAction = "MODIFY_POSITION"
)

// TerminalCommand - команда терминалу (JSON по command-каналу)
type TerminalCommand struct {
	Action     CommandAction `json:"action"`
	RequestID  string        `json:"requestId,omitempty"`
	PositionID string        `json:"positionId,omitempty"`
	Symbol     string        `json:"symbol,omitempty"`
	Side       Side          `json:"side,omitempty"`
	Volume     float64       `json:"volume,omitempty"`
	StopLoss   float64       `json:"stopLoss,omitempty"`
	TakeProfit float64       `json:"takeProfit,omitempty"`
	Comment    string        `json:"comment,omitempty"`
}

// TerminalResponse - структурированный ответ терминала на команду
type TerminalResponse struct {
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	RequestID  string  `json:"requestId,omitempty"`
	PositionID string  `json:"positionId,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Profit     float64 `json:"profit,omitempty"`
	Status     string  `json:"status,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
	Equity     float64 `json:"equity,omitempty"`
}

// PositionEventType - тип события, выведенного из пары снапшотов
type PositionEventType string

const (
	EventOpened          PositionEventType = "opened"
	EventModified        PositionEventType = "modified"
	EventPartiallyClosed PositionEventType = "partiallyClosed"
	EventClosed          PositionEventType = "closed"
)

// PositionEvent - дискретное событие по позиции. Производное, не хранится.
type PositionEvent struct {
	Type       PositionEventType `json:"type"`
	TerminalID string            `json:"terminalId"` // транспортный идентификатор {platform}-{login}
	Ticket     string            `json:"ticket"`
	Sequence   int64             `json:"sequence"` // номер снапшота, из которого выведено событие
	Before     *PositionData     `json:"before,omitempty"`
	After      *PositionData     `json:"after,omitempty"`
	// Для partiallyClosed/closed
	ClosedVolume float64 `json:"closedVolume,omitempty"`
	RealizedPnL  float64 `json:"realizedPnL,omitempty"`
	// Пара таймстемпов снапшотов, из которых выведено событие
	PrevTime time.Time `json:"prevTime"`
	CurrTime time.Time `json:"currTime"`
}

// Position возвращает актуальные данные позиции события
func (e PositionEvent) Position() *PositionData {
	if e.After != nil {
		return e.After
	}

	return e.Before
}

// TerminalSpec - описание терминала, поставляется внешним детектором
// (движок сам файловую систему не сканирует)
type TerminalSpec struct {
	ID       string   `json:"id"` // {platform}-{login}
	Platform Platform `json:"platform"`
	Login    string   `json:"login"`
	DataDir  string   `json:"dataDir,omitempty"`  // file-транспорт (MT4/MT5)
	PipeName string   `json:"pipeName,omitempty"` // streaming-транспорт (cTrader)
}
