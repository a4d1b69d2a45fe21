package models

import (
	"encoding/json"
	"strings"
)

// ChannelSettingKey ключ строки settings со списком каналов.
const ChannelSettingKey = "channel"

// ChannelDescriptor элемент сериализованного списка каналов в settings.
type ChannelDescriptor struct {
	Name string `json:"name"`
}

// ParseChannels разбирает значение настройки каналов. Некорректный JSON даёт пустой
// список, элементы без строкового name пропускаются.
func ParseChannels(raw string) []ChannelDescriptor {
	channels := []ChannelDescriptor{}
	if strings.TrimSpace(raw) == "" {
		return channels
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return channels
	}
	for _, item := range items {
		var ch struct {
			Name *string `json:"name"`
		}
		if err := json.Unmarshal(item, &ch); err != nil || ch.Name == nil {
			continue
		}
		channels = append(channels, ChannelDescriptor{Name: *ch.Name})
	}
	return channels
}

// Channel канал с числом участников.
type Channel struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Stats агрегаты по полному списку подписчиков.
//
// Active считает только статус active, ActiveOrExpiring active и expiring вместе;
// это два разных показателя и они вычисляются раздельно.
type Stats struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	Expiring         int     `json:"expiring"`
	Expired          int     `json:"expired"`
	ActiveOrExpiring int     `json:"active_or_expiring"`
	RoleUserCount    int     `json:"role_user_count"`
	RoleOtherCount   int     `json:"role_other_count"`
	RevenueThisMonth float64 `json:"revenue_this_month"`
}

// Snapshot итоговый снимок для слоя представления.
type Snapshot struct {
	Users    []Subscriber `json:"users"`
	Payments []Payment    `json:"payments"`
	Channels []Channel    `json:"channels"`
	Stats    Stats        `json:"stats"`
}
