package domain

import (
	"fmt"
	"strconv"
	"time"
)

type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TypeID    int64     `json:"type_id"`
	Images    string    `json:"images"`
	Area      string    `json:"area"`
	Address   string    `json:"address"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	AvgPrice  int64     `json:"avg_price"`
	Sold      int       `json:"sold"`
	Comments  int       `json:"comments"`
	Score     int       `json:"score"`
	OpenHours string    `json:"open_hours"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShopType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	Sort int    `json:"sort"`
}

func (s Shop) Fields() map[string]string {
	return map[string]string{
		"id":         strconv.FormatInt(s.ID, 10),
		"name":       s.Name,
		"type_id":    strconv.FormatInt(s.TypeID, 10),
		"images":     s.Images,
		"area":       s.Area,
		"address":    s.Address,
		"x":          strconv.FormatFloat(s.X, 'f', -1, 64),
		"y":          strconv.FormatFloat(s.Y, 'f', -1, 64),
		"avg_price":  strconv.FormatInt(s.AvgPrice, 10),
		"sold":       strconv.Itoa(s.Sold),
		"comments":   strconv.Itoa(s.Comments),
		"score":      strconv.Itoa(s.Score),
		"open_hours": s.OpenHours,
		"created_at": formatTime(s.CreatedAt),
		"updated_at": formatTime(s.UpdatedAt),
	}
}

func ShopFromFields(f map[string]string) (Shop, error) {
	s := Shop{
		Name:      f["name"],
		Images:    f["images"],
		Area:      f["area"],
		Address:   f["address"],
		OpenHours: f["open_hours"],
	}

	var err error
	if s.ID, err = strconv.ParseInt(f["id"], 10, 64); err != nil {
		return Shop{}, fmt.Errorf("id: %w", err)
	}
	if s.TypeID, err = parseInt64(f["type_id"]); err != nil {
		return Shop{}, fmt.Errorf("type_id: %w", err)
	}
	if s.X, err = parseFloat(f["x"]); err != nil {
		return Shop{}, fmt.Errorf("x: %w", err)
	}
	if s.Y, err = parseFloat(f["y"]); err != nil {
		return Shop{}, fmt.Errorf("y: %w", err)
	}
	if s.AvgPrice, err = parseInt64(f["avg_price"]); err != nil {
		return Shop{}, fmt.Errorf("avg_price: %w", err)
	}
	counters := []struct {
		field string
		dst   *int
	}{
		{"sold", &s.Sold},
		{"comments", &s.Comments},
		{"score", &s.Score},
	}
	for _, c := range counters {
		n, err := parseInt64(f[c.field])
		if err != nil {
			return Shop{}, fmt.Errorf("%s: %w", c.field, err)
		}
		*c.dst = int(n)
	}
	if s.CreatedAt, err = parseTime(f["created_at"]); err != nil {
		return Shop{}, fmt.Errorf("created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(f["updated_at"]); err != nil {
		return Shop{}, fmt.Errorf("updated_at: %w", err)
	}
	return s, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
