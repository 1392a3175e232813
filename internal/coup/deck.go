package coup

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/Taiters/coup-clone/internal/errors"
)

// Shuffler 洗牌器，*rand.Rand 满足该接口
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type systemShuffler struct{}

// Shuffle 使用全局随机源（并发安全）
func (systemShuffler) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// SystemShuffler 默认洗牌器
var SystemShuffler Shuffler = systemShuffler{}

// Deck 未发出的牌，牌顶位于切片末尾
type Deck []Influence

// NewDeck 创建并洗好一副完整的牌
func NewDeck(s Shuffler) Deck {
	d := make(Deck, 0, DeckSize)
	for _, role := range Roles {
		for i := 0; i < CopiesPerRole; i++ {
			d = append(d, role)
		}
	}
	d.shuffle(s)
	return d
}

// Len 剩余张数
func (d Deck) Len() int {
	return len(d)
}

// Draw 从牌顶摸 n 张
func (d *Deck) Draw(n int) ([]Influence, error) {
	if n < 0 || len(*d) < n {
		return nil, errors.Newf(errors.ErrDeckExhausted, "需要 %d 张，剩余 %d 张", n, len(*d))
	}
	cut := len(*d) - n
	drawn := append([]Influence(nil), (*d)[cut:]...)
	*d = (*d)[:cut]
	return drawn, nil
}

// Peek 查看牌顶 n 张但不摸走
func (d Deck) Peek(n int) ([]Influence, error) {
	if n < 0 || len(d) < n {
		return nil, errors.Newf(errors.ErrDeckExhausted, "需要 %d 张，剩余 %d 张", n, len(d))
	}
	return append([]Influence(nil), d[len(d)-n:]...), nil
}

// ReturnAndShuffle 放回若干张后整副重洗
func (d *Deck) ReturnAndShuffle(s Shuffler, cards ...Influence) {
	*d = append(*d, cards...)
	d.shuffle(s)
}

func (d Deck) shuffle(s Shuffler) {
	s.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
}

// Clone 复制牌堆
func (d Deck) Clone() Deck {
	return append(Deck(nil), d...)
}

// String 持久化编码，每张牌一位数字
func (d Deck) String() string {
	var b strings.Builder
	for _, card := range d {
		b.WriteString(strconv.Itoa(int(card)))
	}
	return b.String()
}

// ParseDeck 解析持久化编码
func ParseDeck(s string) (Deck, error) {
	d := make(Deck, 0, len(s))
	for _, r := range s {
		inf := Influence(r - '0')
		if !inf.Valid() {
			return nil, errors.Newf(errors.ErrDataIntegrity, "牌堆编码非法: %q", s)
		}
		d = append(d, inf)
	}
	return d, nil
}
