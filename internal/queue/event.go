// Package queue carries promotion notices over RabbitMQ.  When a holder
// cancels and the next waiting party moves to position 0, the reservation
// service hands a model.Promotion to the Publisher; the Consumer on the other
// side turns each message into a notification log line for the party.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/room-slot-reservation/internal/model"
)

// PromotionQueue is the durable queue promotion notices are routed to.
const PromotionQueue = "slot.promoted"

func encodePromotion(p model.Promotion) ([]byte, error) {
	return json.Marshal(p)
}

// decodePromotion parses a message body and rejects notices that could not
// reach anyone.
func decodePromotion(body []byte) (model.Promotion, error) {
	var p model.Promotion
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Promotion{}, fmt.Errorf("unmarshal: %w", err)
	}
	if p.SlotID == 0 {
		return model.Promotion{}, errors.New("promotion without slot id")
	}
	if p.HolderEmail == "" && p.HolderPhone == "" {
		return model.Promotion{}, errors.New("promotion without contact details")
	}
	return p, nil
}
