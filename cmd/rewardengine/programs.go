package main

import (
	"fmt"
	"sort"

	"rewardengine/internal/config"
	"rewardengine/internal/coordinator"
	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	"rewardengine/internal/ledger"
	"rewardengine/internal/oracle"
	"rewardengine/internal/registry"

	"github.com/rs/zerolog"
)

// curveSource resolves curve names from the optional curve file first and
// the built-in presets second.
type curveSource struct {
	defined map[string]*emission.Curve
}

func loadCurves(path string) (*curveSource, error) {
	src := &curveSource{defined: map[string]*emission.Curve{}}
	if path == "" {
		return src, nil
	}
	defs, err := emission.LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	src.defined = defs
	return src, nil
}

// resolve anchors the named curve at startUnit. A curve from the file keeps
// its own start when startUnit is zero.
func (s *curveSource) resolve(name string, startUnit uint64) (*emission.Curve, error) {
	if c, ok := s.defined[name]; ok {
		if startUnit == 0 {
			return c, nil
		}
		return c.WithStart(startUnit), nil
	}
	if c, ok := emission.Preset(name, startUnit); ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown curve %q", name)
}

// extra lists the file-defined curves for the curve catalog, sorted by name.
func (s *curveSource) extra() []*emission.Curve {
	names := make([]string, 0, len(s.defined))
	for n := range s.defined {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*emission.Curve, 0, len(names))
	for _, n := range names {
		out = append(out, s.defined[n])
	}
	return out
}

// buildCoordinator wires the configured reward versions, staking and vesting
// programs. Reward versions are registered in configuration order, so the
// first one starts active; later versions are activated by LedgerCutover.
func buildCoordinator(cfg config.Config, curves *curveSource, board *oracle.Board, logger zerolog.Logger) (*coordinator.Coordinator, error) {
	reg := registry.New(logger.With().Str("component", "registry").Logger())

	for _, rv := range cfg.Rewards {
		curve, err := curves.resolve(rv.Curve, rv.StartUnit)
		if err != nil {
			return nil, fmt.Errorf("reward version %s: %w", rv.Version, err)
		}

		pools := make([]ledger.PoolDescriptor, 0, len(rv.Pools))
		for _, p := range rv.Pools {
			conv, err := oracle.ConverterByName(p.Converter)
			if err != nil {
				return nil, fmt.Errorf("reward version %s pool %s: %w", rv.Version, p.ID, err)
			}
			pools = append(pools, ledger.PoolDescriptor{ID: p.ID, Converter: conv})
		}

		var schedule *fee.Schedule
		if rv.Fee == "public" {
			schedule = fee.Public(curve.StartUnit(), curve.Period())
		}

		l, err := ledger.NewRewardLedger(ledger.RewardConfig{
			Name:   rv.Version,
			Curve:  curve,
			Fee:    schedule,
			Oracle: board,
			Pools:  pools,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(rv.Version, l); err != nil {
			return nil, err
		}
	}

	var staking *ledger.StakingLedger
	if cfg.Staking.Enabled {
		curve, err := curves.resolve(cfg.Staking.Curve, cfg.Staking.StartUnit)
		if err != nil {
			return nil, fmt.Errorf("staking: %w", err)
		}
		staking, err = ledger.NewStakingLedger(ledger.StakingConfig{
			Name:   cfg.Staking.Name,
			Curve:  curve,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
	}

	var vesting *ledger.VestingLedger
	if cfg.Vesting.Enabled {
		switch cfg.Vesting.Preset {
		case "v1":
			vesting = ledger.PrivateVestingV1(cfg.Vesting.StartUnit, logger)
		case "v2":
			vesting = ledger.PrivateVestingV2(cfg.Vesting.StartUnit, logger)
		default:
			return nil, fmt.Errorf("unknown vesting preset %q", cfg.Vesting.Preset)
		}
	}

	return coordinator.New(coordinator.Config{
		Registry: reg,
		Staking:  staking,
		Vesting:  vesting,
		Transfer: coordinator.NopTransfer{},
		Logger:   logger.With().Str("component", "coordinator").Logger(),
	}), nil
}
