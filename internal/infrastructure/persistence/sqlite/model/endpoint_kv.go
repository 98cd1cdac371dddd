package model

// EndpointKV is one cached payload. ExpiresAt is RFC3339Nano; empty means
// the entry never expires. Expired rows are kept until overwritten or
// deleted so stale reads stay possible.
type EndpointKV struct {
	Key       string `gorm:"column:key;type:text;primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt string `gorm:"column:expires_at;type:text"`
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (EndpointKV) TableName() string {
	return "endpoint_kv"
}
