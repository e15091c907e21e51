// Package notify pushes call events to registered HTTP endpoints so external
// systems can react to sessions, utterances, and conversation ends without
// polling the transcript API.
package notify

import (
	"encoding/json"

	"github.com/pitabwire/frame/data"

	"github.com/voicebridge/voicebridge/pkg/events"
)

// Endpoint is a registered event subscription.
type Endpoint struct {
	data.BaseModel

	Name        string        `gorm:"type:varchar(255);not null"  json:"name"`
	URL         string        `gorm:"type:varchar(2048);not null" json:"url"`
	Secret      string        `gorm:"type:varchar(512);not null"  json:"-"`
	EventTypes  EventTypeList `gorm:"type:jsonb;default:'[]'"     json:"event_types"`
	IsActive    bool          `gorm:"default:true"                json:"is_active"`
	Description string        `gorm:"type:text"                   json:"description,omitempty"`
}

func (Endpoint) TableName() string { return "notify_endpoints" }

// EventTypeList stores the subscribed event types as JSONB.
type EventTypeList []events.EventType

func (e EventTypeList) Value() (interface{}, error) {
	return json.Marshal(e)
}

func (e *EventTypeList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		*e = EventTypeList{}
		return nil
	}
}

// Contains reports whether the list includes the given event type. An empty
// list subscribes to everything.
func (e EventTypeList) Contains(et events.EventType) bool {
	if len(e) == 0 {
		return true
	}
	for _, t := range e {
		if t == et {
			return true
		}
	}
	return false
}

// Delivery records one attempt to push an event to an endpoint.
type Delivery struct {
	data.BaseModel

	EndpointID   string `gorm:"type:varchar(50);not null;index:idx_delivery_endpoint" json:"endpoint_id"`
	EventID      string `gorm:"type:varchar(50);not null"                             json:"event_id"`
	EventType    string `gorm:"type:varchar(100);not null"                            json:"event_type"`
	Attempt      int    `gorm:"default:1"                                             json:"attempt"`
	ResponseCode int    `gorm:"default:0"                                             json:"response_code"`
	Status       string `gorm:"type:varchar(20);not null;index:idx_delivery_status"   json:"status"`
	Error        string `gorm:"type:text"                                             json:"error,omitempty"`
	DurationMs   int64  `gorm:"default:0"                                             json:"duration_ms"`
}

func (Delivery) TableName() string { return "notify_deliveries" }

// Delivery statuses.
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)
