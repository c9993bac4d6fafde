package wire

import (
	"time"

	"github.com/go-faster/jx"
)

// ReviewRequest is the body of POST /api/reviews.
type ReviewRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (r *ReviewRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "orderId", r.OrderID)
	e.FieldStart("rating")
	e.Int(r.Rating)
	field(e, "comment", r.Comment)
	e.ObjEnd()
}

func (r *ReviewRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId", "order":
			r.OrderID, err = decodeString(d)
		case "rating":
			if d.Next() == jx.Null {
				err = d.Null()
				break
			}
			r.Rating, err = d.Int()
		case "comment":
			r.Comment, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Review is a stored review.
type Review struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Review) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "id", r.ID)
	field(e, "orderId", r.OrderID)
	e.FieldStart("rating")
	e.Int(r.Rating)
	field(e, "comment", r.Comment)
	e.FieldStart("createdAt")
	encodeTime(e, r.CreatedAt)
	e.ObjEnd()
}

func (r *Review) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			r.ID, err = decodeString(d)
		case "orderId":
			r.OrderID, err = decodeString(d)
		case "rating":
			r.Rating, err = d.Int()
		case "comment":
			r.Comment, err = decodeString(d)
		case "createdAt":
			r.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Reviews is the result of GET /api/reviews.
type Reviews []Review

func (rs Reviews) Encode(e *jx.Encoder) {
	e.ArrStart()
	for i := range rs {
		rs[i].Encode(e)
	}
	e.ArrEnd()
}

func (rs *Reviews) Decode(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		var r Review
		if err := r.Decode(d); err != nil {
			return err
		}
		*rs = append(*rs, r)
		return nil
	})
}
