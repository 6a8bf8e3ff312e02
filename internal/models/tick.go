package models

import "time"

// Tick — одно обновление цены из фида. Живёт ровно до агрегатора.
type Tick struct {
	Broker        BrokerName
	InstrumentKey string
	Price         float64
	High          float64
	Low           float64
	Open          float64
	Close         float64
	Volume        float64
	Timestamp     time.Time
}
