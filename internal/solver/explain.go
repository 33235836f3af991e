package solver

import (
	"context"
	"fmt"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

// explain collects up to maxCores minimal unsatisfiable subsets of the
// formula's rules and turns them into reasons. After each core its
// requirement rules are dropped so the next search finds an independent
// cause.
func (s *solver) explain(ctx context.Context, u *universe.Universe, f *formula) ([]Reason, error) {
	consistent := func(rules []rule) (bool, error) {
		_, ok, err := s.engine.solve(ctx, len(f.pkgs), f.clauses(f.goals, rules))
		return ok, err
	}

	var reasons []Reason
	seen := make(map[string]bool)
	active := f.rules
	for cores := 0; cores < s.maxCores; cores++ {
		if cores > 0 {
			ok, err := consistent(active)
			if err != nil {
				return nil, err
			}
			if ok {
				break
			}
		}

		core, err := quickXplain(ctx, consistent, nil, active)
		if err != nil {
			return nil, err
		}
		if len(core) == 0 {
			break
		}
		for _, r := range coreReasons(u, core) {
			if k := r.key(); !seen[k] {
				seen[k] = true
				reasons = append(reasons, r)
			}
		}
		active = relaxCore(active, core)
	}
	return reasons, nil
}

// quickXplain returns a minimal subset of candidates that is inconsistent
// together with background, or nil if background plus candidates is
// consistent. Each rule's position in candidates is preserved in the
// result.
func quickXplain(ctx context.Context, consistent func([]rule) (bool, error), background, candidates []rule) ([]rule, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ok, err := consistent(concat(background, candidates))
	if err != nil || ok {
		return nil, err
	}
	return qx(ctx, consistent, background, false, candidates)
}

func qx(ctx context.Context, consistent func([]rule) (bool, error), background []rule, changed bool, candidates []rule) ([]rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if changed {
		ok, err := consistent(background)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	if len(candidates) == 1 {
		return candidates, nil
	}

	half := len(candidates) / 2
	c1, c2 := candidates[:half], candidates[half:]
	d2, err := qx(ctx, consistent, concat(background, c1), len(c1) > 0, c2)
	if err != nil {
		return nil, err
	}
	d1, err := qx(ctx, consistent, concat(background, d2), len(d2) > 0, c1)
	if err != nil {
		return nil, err
	}
	return concat(d1, d2), nil
}

func concat(a, b []rule) []rule {
	out := make([]rule, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// relaxCore removes the requirement rules of core from rules, or every rule
// of the core when it holds no requirement.
func relaxCore(rules, core []rule) []rule {
	drop := make(map[string]bool)
	hasRequires := false
	for _, r := range core {
		if r.kind == ruleRequires {
			hasRequires = true
		}
	}
	for _, r := range core {
		if !hasRequires || r.kind == ruleRequires {
			drop[ruleKey(r)] = true
		}
	}
	out := make([]rule, 0, len(rules))
	for _, r := range rules {
		if !drop[ruleKey(r)] {
			out = append(out, r)
		}
	}
	return out
}

func ruleKey(r rule) string {
	k := r.pkg.Identity().Key() + "|" + r.cap.String()
	if r.other != nil {
		k += "|" + r.other.Identity().Key()
	}
	for _, w := range r.when {
		k += "|+" + w.Identity().Key()
	}
	for _, q := range r.unless {
		k += "|-" + q.Identity().Key()
	}
	return fmt.Sprintf("%d|%s", r.kind, k)
}

// coreReasons translates a core. Requirements nothing provides are the
// root cause of any core they appear in, so the rest of such a core is
// left out.
func coreReasons(u *universe.Universe, core []rule) []Reason {
	var missing []rule
	for _, r := range core {
		if r.kind == ruleRequires && len(r.providers) == 0 {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		core = missing
	}

	reasons := make([]Reason, 0, len(core))
	for _, r := range core {
		switch r.kind {
		case ruleRequires:
			reasons = append(reasons, Reason{
				Kind:       Unsatisfied,
				Package:    r.pkg,
				Capability: r.cap,
				Providers:  r.providers,
				NearMisses: nearMisses(u, r.cap),
			})
		case ruleConflict:
			reasons = append(reasons, Reason{Kind: Conflict, Package: r.pkg, Capability: r.cap, Other: r.other})
		case ruleObsolete:
			reasons = append(reasons, Reason{Kind: Obsolete, Package: r.pkg, Capability: r.cap, Other: r.other})
		case ruleSameName:
			reasons = append(reasons, Reason{Kind: SameName, Package: r.pkg, Capability: r.other.SelfProvide(), Other: r.other})
		}
	}
	return reasons
}

// nearMisses lists the packages that provide the capability's name but not
// a matching version.
func nearMisses(u *universe.Universe, c models.Capability) []NearMiss {
	if c.Rich != nil || !c.Versioned() {
		return nil
	}
	var out []NearMiss
	for _, p := range u.ProvidersByName(c.Name) {
		if p.ProvidesCapability(c) {
			continue
		}
		prov, ok := p.MatchingProvide(c.Name)
		if !ok {
			continue
		}
		why := "version does not match"
		if prov.Versioned() {
			switch cmp := prov.Version.Compare(c.Version); {
			case cmp < 0:
				why = "version too low"
			case cmp > 0:
				why = "version too high"
			}
		}
		out = append(out, NearMiss{Package: p, Provide: prov, Why: why})
	}
	return out
}
