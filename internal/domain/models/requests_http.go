package models

// Requests for analytics HTTP endpoints. Defined in domain for consistency and reuse.

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"5000" validate:"gte=1,lte=100000"`
}

type ExportRequest struct {
	Kind    string `query:"kind" json:"kind" default:"analytics" validate:"oneof=ticks bars analytics alerts"`
	Format  string `query:"format" json:"format" default:"csv" validate:"oneof=csv json"`
	Symbol  string `query:"symbol" json:"symbol" validate:"required_if=Kind ticks,required_if=Kind bars"`
	TF      string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From    string `query:"from" json:"from"`
	To      string `query:"to" json:"to"`
	Limit   int    `query:"limit" json:"limit" default:"10000" validate:"gte=1,lte=1000000"`
	Archive bool   `query:"archive" json:"archive"`
}

type PruneAlertsRequest struct {
	MaxAge string `query:"max_age" json:"max_age" default:"24h" validate:"required,duration"`
}

type AlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}
