package coup

import (
	"strconv"
	"strings"

	"github.com/Taiters/coup-clone/internal/errors"
)

// Influence 角色牌
type Influence int

const (
	Unknown Influence = iota
	Duke
	Ambassador
	Assassin
	Contessa
	Captain
)

const (
	// CopiesPerRole 每种角色的张数
	CopiesPerRole = 3
	// DeckSize 整副牌的张数
	DeckSize = CopiesPerRole * 5
)

// Roles 五种角色，顺序即持久化编码顺序
var Roles = []Influence{Duke, Ambassador, Assassin, Contessa, Captain}

var influenceNames = map[Influence]string{
	Unknown:    "UNKNOWN",
	Duke:       "DUKE",
	Ambassador: "AMBASSADOR",
	Assassin:   "ASSASSIN",
	Contessa:   "CONTESSA",
	Captain:    "CAPTAIN",
}

// Valid 是否为真实角色
func (i Influence) Valid() bool {
	return i >= Duke && i <= Captain
}

func (i Influence) String() string {
	if name, ok := influenceNames[i]; ok {
		return name
	}
	return "INFLUENCE(" + strconv.Itoa(int(i)) + ")"
}

// Title 日志中使用的角色名
func (i Influence) Title() string {
	name := i.String()
	return name[:1] + strings.ToLower(name[1:])
}

// withArticle "a Duke" / "an Assassin"
func (i Influence) withArticle() string {
	title := i.Title()
	if strings.ContainsRune("AEIOU", rune(title[0])) {
		return "an " + title
	}
	return "a " + title
}

// MarshalText 以角色名序列化
func (i Influence) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText 接受角色名或数字编码
func (i *Influence) UnmarshalText(text []byte) error {
	parsed, err := ParseInfluence(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// ParseInfluence 解析角色，未知角色返回 ErrInvalidReveal
func ParseInfluence(s string) (Influence, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if inf := Influence(n); inf == Unknown || inf.Valid() {
			return inf, nil
		}
		return Unknown, errors.Newf(errors.ErrInvalidReveal, "未知角色编码: %d", n)
	}
	upper := strings.ToUpper(s)
	for inf, name := range influenceNames {
		if name == upper {
			return inf, nil
		}
	}
	return Unknown, errors.Newf(errors.ErrInvalidReveal, "未知角色: %s", s)
}
