package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// Level field names carried in overlay level ids.
const (
	FieldEntry = "entry"
	FieldPrice = "price"
	FieldSL    = "sl"
	FieldTP    = "tp"
)

const (
	positionPrefix = "pos"
	orderPrefix    = "ord"
)

// ErrNotRoutable is returned for level ids that do not address a broker object.
var ErrNotRoutable = errors.New("broker: level id is not routable")

// PositionLevelID builds the overlay id of a position's level.
func PositionLevelID(positionID, field string) string {
	return positionPrefix + ":" + positionID + ":" + field
}

// OrderLevelID builds the overlay id of an order's level.
func OrderLevelID(orderID, field string) string {
	return orderPrefix + ":" + orderID + ":" + field
}

// LevelTarget is the decoded form of a routable level id.
type LevelTarget struct {
	Position bool
	ID       string
	Field    string
}

// ParseLevelID decodes "pos:<id>:<field>" and "ord:<id>:<field>".
func ParseLevelID(levelID string) (LevelTarget, error) {
	parts := strings.Split(levelID, ":")
	if len(parts) != 3 || parts[1] == "" {
		return LevelTarget{}, fmt.Errorf("%w: %q", ErrNotRoutable, levelID)
	}
	target := LevelTarget{ID: parts[1], Field: parts[2]}
	switch parts[0] {
	case positionPrefix:
		target.Position = true
		if target.Field != FieldSL && target.Field != FieldTP {
			return LevelTarget{}, fmt.Errorf("%w: position field %q", ErrNotRoutable, target.Field)
		}
	case orderPrefix:
		if target.Field != FieldPrice && target.Field != FieldSL && target.Field != FieldTP {
			return LevelTarget{}, fmt.Errorf("%w: order field %q", ErrNotRoutable, target.Field)
		}
	default:
		return LevelTarget{}, fmt.Errorf("%w: %q", ErrNotRoutable, levelID)
	}
	return target, nil
}

// LevelUpdateRouter translates dragged level prices into broker modifications.
// It does not wait for the new state; callers observe the result through the
// next position/order refresh.
type LevelUpdateRouter struct {
	mutator Mutator
}

// NewLevelUpdateRouter wires a router to a mutator.
func NewLevelUpdateRouter(m Mutator) *LevelUpdateRouter {
	return &LevelUpdateRouter{mutator: m}
}

// Apply issues the modification addressed by levelID.
func (r *LevelUpdateRouter) Apply(ctx context.Context, levelID string, price float64) error {
	if r == nil || r.mutator == nil {
		return errors.New("broker: router has no mutator")
	}
	target, err := ParseLevelID(levelID)
	if err != nil {
		return err
	}
	p := price
	if target.Position {
		var sl, tp *float64
		if target.Field == FieldSL {
			sl = &p
		} else {
			tp = &p
		}
		err = r.mutator.ModifyPosition(ctx, target.ID, sl, tp)
	} else {
		var px, sl, tp *float64
		switch target.Field {
		case FieldPrice:
			px = &p
		case FieldSL:
			sl = &p
		default:
			tp = &p
		}
		err = r.mutator.ModifyOrder(ctx, target.ID, px, sl, tp)
	}
	if err != nil {
		logx.WithContext(ctx).Errorf("broker: apply level update level=%s price=%v err=%v", levelID, price, err)
		return err
	}
	logx.WithContext(ctx).Infof("broker: applied level update level=%s price=%v", levelID, price)
	return nil
}
