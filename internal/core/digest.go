package core

import (
	"encoding/binary"
	"fmt"
	"sort"

	"rewardengine/internal/ledger"
	"rewardengine/internal/oracle"

	"github.com/google/uuid"
)

// digest collects the state an event touched as path -> canonical value.
// The canonical bytes feed the state hash, so two nodes that applied the
// same events produce the same chain.
type digest map[string]string

func (d digest) put(path, value string) {
	d[path] = value
}

// bytes encodes entries sorted by path, each as
// len(path) u16 LE || path || len(value) u16 LE || value.
func (d digest) bytes() []byte {
	paths := make([]string, 0, len(d))
	for p := range d {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	size := 0
	for _, p := range paths {
		size += 4 + len(p) + len(d[p])
	}
	buf := make([]byte, 0, size)
	for _, p := range paths {
		buf = appendField(buf, p)
		buf = appendField(buf, d[p])
	}
	return buf
}

func appendField(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// shares records one account's position in a reward pool plus the pool and
// ledger totals that moved with it.
func (d digest) shares(l *ledger.RewardLedger, version, pool string, account uuid.UUID) {
	d.put(fmt.Sprintf("rewards:%s:last_update", version), fmt.Sprint(l.LastUpdateUnit()))
	if supply, err := l.TotalSupply(pool); err == nil {
		d.put(fmt.Sprintf("rewards:%s:pool:%s:supply", version, pool), supply.String())
	}
	d.put(fmt.Sprintf("rewards:%s:pool:%s:%s", version, pool, account), l.Shares(account, pool).String())
	d.put(fmt.Sprintf("rewards:%s:claimed:%s", version, account), l.Claimed(account).String())
}

func (d digest) stake(s *ledger.StakingLedger, account uuid.UUID) {
	d.put("staking:last_update", fmt.Sprint(s.LastUpdateUnit()))
	d.put("staking:total", s.TotalStaked().String())
	d.put("staking:staked:"+account.String(), s.StakedBalance(account).String())
	d.put("staking:claimed:"+account.String(), s.Claimed(account).String())
}

func (d digest) allocation(v *ledger.VestingLedger, account uuid.UUID) {
	total, claimed := v.Allocation(account)
	d.put("vesting:"+account.String(), total.String()+"/"+claimed.String())
}

func (d digest) reading(b *oracle.Board, pool string) {
	r, ok := b.Snapshot()[pool]
	if !ok {
		return
	}
	value := fmt.Sprintf("unavailable=%t", r.Unavailable)
	if r.HasBalance {
		value += " balance=" + r.Balance.String()
	}
	if r.HasRate {
		value += " rate=" + r.Rate.String()
	}
	d.put("oracle:"+pool, value)
}

// journals records the balance of every account a batch touched.
func (d digest) journals(bt *ledger.BalanceTracker, batch *ledger.Batch) {
	for _, j := range batch.Journals {
		for _, key := range []ledger.AccountKey{j.DebitAccount, j.CreditAccount} {
			d.put("paid:"+key.AccountPath(), bt.GetBalance(key).String())
		}
	}
}
