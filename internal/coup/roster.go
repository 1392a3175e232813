package coup

// Player 座位上的玩家
type Player struct {
	ID            uint
	Name          string
	Coins         int
	Influence     [2]Influence
	Revealed      [2]bool
	Host          bool
	AcceptsAction bool
	// Left 对局进行中离开，保留座位直到重开
	Left bool
}

// Eliminated 两张牌都已亮出
func (p *Player) Eliminated() bool {
	return p.Revealed[0] && p.Revealed[1]
}

// Active 仍参与回合轮转与胜负判定
func (p *Player) Active() bool {
	return !p.Eliminated()
}

// Hand 未亮出的手牌
func (p *Player) Hand() []Influence {
	hand := make([]Influence, 0, 2)
	for slot := range p.Influence {
		if !p.Revealed[slot] {
			hand = append(hand, p.Influence[slot])
		}
	}
	return hand
}

// unrevealedSlot 找到持有该角色且未亮出的槽位
func (p *Player) unrevealedSlot(inf Influence) (int, bool) {
	for slot := range p.Influence {
		if !p.Revealed[slot] && p.Influence[slot] == inf {
			return slot, true
		}
	}
	return 0, false
}

func (p *Player) clone() *Player {
	cp := *p
	return &cp
}

// Roster 按座位顺序排列的玩家
type Roster []*Player

// Find 按ID查找
func (r Roster) Find(id uint) *Player {
	if i := r.index(id); i >= 0 {
		return r[i]
	}
	return nil
}

func (r Roster) index(id uint) int {
	if id == 0 {
		return -1
	}
	for i, p := range r {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Active 未出局的玩家
func (r Roster) Active() Roster {
	active := make(Roster, 0, len(r))
	for _, p := range r {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

// Next 座位顺序上 after 之后的下一位未出局玩家，可能绕回 after 自己
func (r Roster) Next(after uint) *Player {
	if len(r) == 0 {
		return nil
	}
	start := r.index(after)
	for step := 1; step <= len(r); step++ {
		p := r[(start+step+len(r))%len(r)]
		if p.Active() {
			return p
		}
	}
	return nil
}

// Host 当前房主
func (r Roster) Host() *Player {
	for _, p := range r {
		if p.Host {
			return p
		}
	}
	return nil
}

// remove 移除并返回玩家
func (r *Roster) remove(id uint) *Player {
	i := r.index(id)
	if i < 0 {
		return nil
	}
	p := (*r)[i]
	*r = append((*r)[:i:i], (*r)[i+1:]...)
	return p
}

// promoteHost 房主离开后顺延给下一位仍在座的玩家
func (r Roster) promoteHost(leaving uint) {
	start := r.index(leaving)
	for step := 1; step <= len(r); step++ {
		idx := (start + step + len(r)) % len(r)
		if start < 0 {
			idx = step - 1
		}
		p := r[idx]
		if p.ID != leaving && !p.Left {
			p.Host = true
			return
		}
	}
}

func (r Roster) clearAccepts() {
	for _, p := range r {
		p.AcceptsAction = false
	}
}
