package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"darkpool/internal/auth"
	"darkpool/internal/ledger"
	"darkpool/internal/registry"
	"darkpool/internal/settlement"
	"darkpool/internal/signals"
	"darkpool/internal/token"
	"darkpool/internal/verifier"
)

// =============================================================================
// 1. INFRASTRUCTURE/BUILDING BLOCK TESTS
// =============================================================================

func TestPublicSignalCodec(t *testing.T) {
	t.Run("Encode Decode Round Trip", func(t *testing.T) {
		in := []common.Hash{
			crypto.Keccak256Hash([]byte("signal A")),
			crypto.Keccak256Hash([]byte("signal B")),
			common.BigToHash(big.NewInt(42)),
		}

		out, err := signals.Decode(signals.Encode(in))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(out) != len(in) {
			t.Fatalf("got %d signals, want %d", len(out), len(in))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("signal %d changed across the codec", i)
			}
		}
	})

	t.Run("Settlement Layout Accessors", func(t *testing.T) {
		sigs := make([]common.Hash, signals.SettlementFieldCount)
		sigs[signals.IdxNullifier] = crypto.Keccak256Hash([]byte("nullifier"))
		sigs[signals.IdxQuantity] = common.BigToHash(big.NewInt(40))
		sigs[signals.IdxPrice] = common.BigToHash(big.NewInt(2000))
		sigs[signals.IdxWhitelistRoot] = crypto.Keccak256Hash([]byte("root"))

		parsed, err := signals.ParseSettlement(signals.Encode(sigs))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if parsed.Nullifier() != sigs[signals.IdxNullifier] {
			t.Error("nullifier accessor mismatch")
		}
		if parsed.Quantity().Cmp(big.NewInt(40)) != 0 {
			t.Errorf("quantity = %s, want 40", parsed.Quantity())
		}
		if parsed.Price().Cmp(big.NewInt(2000)) != 0 {
			t.Errorf("price = %s, want 2000", parsed.Price())
		}
		if parsed.WhitelistRoot() != sigs[signals.IdxWhitelistRoot] {
			t.Error("whitelist root accessor mismatch")
		}
	})

	t.Run("Malformed Payload Rejection", func(t *testing.T) {
		if _, err := signals.Decode([]byte{0x00, 0x01}); !errors.Is(err, signals.ErrMalformed) {
			t.Errorf("short header: got %v, want ErrMalformed", err)
		}

		// Count header promises more fields than the payload carries.
		truncated := signals.Encode(make([]common.Hash, 3))[:4+2*signals.FieldSize]
		if _, err := signals.Decode(truncated); !errors.Is(err, signals.ErrMalformed) {
			t.Errorf("truncated field: got %v, want ErrMalformed", err)
		}

		// Six signals decode fine but do not form a settlement layout.
		six := signals.Encode(make([]common.Hash, 6))
		if _, err := signals.ParseSettlement(six); !errors.Is(err, signals.ErrMalformed) {
			t.Errorf("wrong count: got %v, want ErrMalformed", err)
		}
	})
}

func TestCredentialScheme(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)
	authenticator := auth.NewEIP191()

	t.Run("Signature Round Trip", func(t *testing.T) {
		scope := settlement.AuthScope(settlement.OpDeposit, owner, common.Address{0x10}, big.NewInt(100))
		credential, err := auth.Sign(scope, key)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		if err := authenticator.Authenticate(owner, scope, credential); err != nil {
			t.Errorf("owner's credential rejected: %v", err)
		}
	})

	t.Run("Wrong Key Rejected", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("key generation failed: %v", err)
		}

		scope := settlement.AuthScope(settlement.OpDeposit, owner, common.Address{0x10}, big.NewInt(100))
		credential, err := auth.Sign(scope, otherKey)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		if err := authenticator.Authenticate(owner, scope, credential); err == nil {
			t.Error("credential signed by another key was accepted")
		}
	})

	t.Run("Scope Binding", func(t *testing.T) {
		// A deposit credential must not authorize a withdrawal of the same
		// amount.
		depositScope := settlement.AuthScope(settlement.OpDeposit, owner, common.Address{0x10}, big.NewInt(100))
		withdrawScope := settlement.AuthScope(settlement.OpWithdraw, owner, common.Address{0x10}, big.NewInt(100))

		credential, err := auth.Sign(depositScope, key)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		if err := authenticator.Authenticate(owner, withdrawScope, credential); err == nil {
			t.Error("deposit credential authorized a withdrawal")
		}
	})
}

// =============================================================================
// 2. PROOF SYSTEM TESTS
// =============================================================================

func TestSettlementProofSystem(t *testing.T) {
	keys := setupCircuitKeys(t)
	g16 := verifier.NewGroth16()

	sigs := make([]common.Hash, signals.SettlementFieldCount)
	for i := range sigs {
		sigs[i] = crypto.Keccak256Hash([]byte{byte(i + 1)})
	}
	proof := proveSignals(t, keys, sigs)

	t.Run("Valid Proof Accepted", func(t *testing.T) {
		ok, err := g16.Verify(keys.vk, proof, signals.Encode(sigs))
		if err != nil {
			t.Fatalf("verification errored: %v", err)
		}
		if !ok {
			t.Error("valid proof rejected")
		}
	})

	t.Run("Tampered Signal Rejected", func(t *testing.T) {
		tampered := make([]common.Hash, len(sigs))
		copy(tampered, sigs)
		tampered[signals.IdxQuantity] = common.BigToHash(big.NewInt(999999))

		ok, err := g16.Verify(keys.vk, proof, signals.Encode(tampered))
		if err != nil {
			t.Fatalf("verification errored: %v", err)
		}
		if ok {
			t.Error("proof accepted against tampered signals")
		}
	})

	t.Run("Garbage Proof Rejected", func(t *testing.T) {
		if ok, err := g16.Verify(keys.vk, []byte("not a proof"), signals.Encode(sigs)); ok || err == nil {
			t.Error("garbage proof bytes did not error")
		}
	})

	t.Run("Signal Count Enforced", func(t *testing.T) {
		short := signals.Encode(sigs[:signals.SettlementFieldCount-1])
		if ok, err := g16.Verify(keys.vk, proof, short); ok || err == nil {
			t.Error("six-signal payload did not error")
		}
	})
}

// =============================================================================
// 3. INDIVIDUAL OPERATION TESTS
// =============================================================================

func TestDepositAndWithdraw(t *testing.T) {
	keys := setupCircuitKeys(t)
	env := newTradingEnv(t, keys)
	ctx := context.Background()
	aliceRWA := ledger.AccountKey{Participant: env.alice, Asset: env.rwa}

	t.Run("Deposit Moves Tokens Into Custody", func(t *testing.T) {
		before := env.tokens.BalanceOf(env.alice, env.rwa)

		env.deposit(t, env.aliceKey, env.alice, env.rwa, big.NewInt(100))

		if got := env.engine.Ledger().EscrowBalance(aliceRWA); got.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("escrow = %s, want 100", got)
		}
		after := env.tokens.BalanceOf(env.alice, env.rwa)
		if diff := new(big.Int).Sub(before, after); diff.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("token balance dropped by %s, want 100", diff)
		}
		if got := env.tokens.BalanceOf(env.admin, env.rwa); got.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("custody holds %s, want 100", got)
		}
	})

	t.Run("Withdraw Returns Tokens", func(t *testing.T) {
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpWithdraw, env.alice, env.rwa, big.NewInt(30)))
		remaining, err := env.engine.Withdraw(ctx, env.alice, env.rwa, big.NewInt(30), credential)
		if err != nil {
			t.Fatalf("withdraw failed: %v", err)
		}
		if remaining.Cmp(big.NewInt(70)) != 0 {
			t.Errorf("remaining escrow = %s, want 70", remaining)
		}
		if got := env.tokens.BalanceOf(env.admin, env.rwa); got.Cmp(big.NewInt(70)) != 0 {
			t.Errorf("custody holds %s, want 70", got)
		}
	})

	t.Run("Forged Credential Rejected", func(t *testing.T) {
		// Bob signs a deposit scope naming Alice as the participant.
		credential := env.credential(t, env.bobKey,
			settlement.AuthScope(settlement.OpDeposit, env.alice, env.rwa, big.NewInt(10)))
		_, err := env.engine.Deposit(ctx, env.alice, env.rwa, big.NewInt(10), credential)
		if !errors.Is(err, settlement.ErrUnauthorized) {
			t.Errorf("got %v, want ErrUnauthorized", err)
		}
		if got := env.engine.Ledger().EscrowBalance(aliceRWA); got.Cmp(big.NewInt(70)) != 0 {
			t.Errorf("escrow changed to %s after rejected deposit", got)
		}
	})

	t.Run("Overdraft Withdrawal Rejected", func(t *testing.T) {
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpWithdraw, env.alice, env.rwa, big.NewInt(1000)))
		_, err := env.engine.Withdraw(ctx, env.alice, env.rwa, big.NewInt(1000), credential)
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Errorf("got %v, want ErrInsufficientBalance", err)
		}
	})
}

func TestEscrowLocking(t *testing.T) {
	keys := setupCircuitKeys(t)
	env := newTradingEnv(t, keys)
	ctx := context.Background()
	aliceRWA := ledger.AccountKey{Participant: env.alice, Asset: env.rwa}

	env.deposit(t, env.aliceKey, env.alice, env.rwa, big.NewInt(100))

	t.Run("Lock Reserves Available Funds", func(t *testing.T) {
		env.lock(t, env.aliceKey, env.alice, env.rwa, big.NewInt(40))

		l := env.engine.Ledger()
		if got := l.LockedBalance(aliceRWA); got.Cmp(big.NewInt(40)) != 0 {
			t.Errorf("locked = %s, want 40", got)
		}
		if got := l.AvailableBalance(aliceRWA); got.Cmp(big.NewInt(60)) != 0 {
			t.Errorf("available = %s, want 60", got)
		}
	})

	t.Run("Locked Funds Cannot Be Withdrawn", func(t *testing.T) {
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpWithdraw, env.alice, env.rwa, big.NewInt(80)))
		_, err := env.engine.Withdraw(ctx, env.alice, env.rwa, big.NewInt(80), credential)
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Errorf("got %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("Over-Lock Rejected", func(t *testing.T) {
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpLockEscrow, env.alice, env.rwa, big.NewInt(61)))
		err := env.engine.LockEscrow(ctx, env.alice, env.rwa, big.NewInt(61), credential)
		if !errors.Is(err, ledger.ErrInsufficientEscrow) {
			t.Errorf("got %v, want ErrInsufficientEscrow", err)
		}
	})

	t.Run("Unlock Releases Funds", func(t *testing.T) {
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpUnlockEscrow, env.alice, env.rwa, big.NewInt(40)))
		if err := env.engine.UnlockEscrow(ctx, env.alice, env.rwa, big.NewInt(40), credential); err != nil {
			t.Fatalf("unlock failed: %v", err)
		}
		if got := env.engine.Ledger().AvailableBalance(aliceRWA); got.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("available = %s, want 100", got)
		}
	})
}

func TestAdminControls(t *testing.T) {
	keys := setupCircuitKeys(t)
	env := newTradingEnv(t, keys)
	ctx := context.Background()

	t.Run("Non-Admin Rejected", func(t *testing.T) {
		// Alice's credential is genuine, but she is not the admin.
		credential := env.credential(t, env.aliceKey,
			settlement.AdminScope(settlement.OpSetWhitelist, env.alice, []byte{0x01}))
		err := env.engine.SetWhitelistEnforcement(env.alice, credential, true)
		if !errors.Is(err, settlement.ErrOnlyAdmin) {
			t.Errorf("got %v, want ErrOnlyAdmin", err)
		}
	})

	t.Run("Enforcement Gates Unlisted Participants", func(t *testing.T) {
		credential := env.credential(t, env.adminKey,
			settlement.AdminScope(settlement.OpSetWhitelist, env.admin, []byte{0x01}))
		if err := env.engine.SetWhitelistEnforcement(env.admin, credential, true); err != nil {
			t.Fatalf("enabling enforcement failed: %v", err)
		}

		outsiderKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("key generation failed: %v", err)
		}
		outsider := crypto.PubkeyToAddress(outsiderKey.PublicKey)
		env.tokens.Mint(outsider, env.rwa, big.NewInt(50))

		outsiderCred := env.credential(t, outsiderKey,
			settlement.AuthScope(settlement.OpDeposit, outsider, env.rwa, big.NewInt(50)))
		_, err = env.engine.Deposit(ctx, outsider, env.rwa, big.NewInt(50), outsiderCred)
		if !errors.Is(err, settlement.ErrParticipantNotEligible) {
			t.Errorf("got %v, want ErrParticipantNotEligible", err)
		}

		// Listed participants still pass.
		env.deposit(t, env.aliceKey, env.alice, env.rwa, big.NewInt(50))
	})

	t.Run("Key Rotation Invalidates Old Proofs", func(t *testing.T) {
		quantity := big.NewInt(40)
		price := big.NewInt(2000)
		env.fundTrade(t, quantity, price)

		sigs := env.tradeSignals(t, "rotation-trade", quantity, price)
		proof := proveSignals(t, keys, sigs)

		// Rotate to the verifying key of an independent setup.
		replacement := setupCircuitKeys(t)
		credential := env.credential(t, env.adminKey,
			settlement.AdminScope(settlement.OpRotateVerifyingKey, env.admin, replacement.vk))
		if err := env.engine.RotateVerificationKey(env.admin, credential, replacement.vk); err != nil {
			t.Fatalf("key rotation failed: %v", err)
		}

		_, err := env.engine.SettleTrade(ctx, env.settleParams("rotation-match", quantity, price, proof, sigs))
		if !errors.Is(err, settlement.ErrInvalidProof) {
			t.Errorf("got %v, want ErrInvalidProof", err)
		}
	})
}

// =============================================================================
// 4. INTEGRATION/PROTOCOL TESTS
// =============================================================================

func TestFullSettlementFlow(t *testing.T) {
	t.Run("Complete Trade Lifecycle", func(t *testing.T) {
		startTime := time.Now()
		keys := setupCircuitKeys(t)
		env := newTradingEnv(t, keys)
		ctx := context.Background()

		quantity := big.NewInt(40)
		price := big.NewInt(2000)

		// Phase 1: both sides fund escrow
		env.deposit(t, env.aliceKey, env.alice, env.rwa, big.NewInt(100))
		env.deposit(t, env.bobKey, env.bob, env.usd, big.NewInt(5000))

		// Phase 2: both legs lock
		env.lock(t, env.aliceKey, env.alice, env.rwa, quantity)
		env.lock(t, env.bobKey, env.bob, env.usd, price)

		// Phase 3: prove and settle the matched trade
		sigs := env.tradeSignals(t, "lifecycle-trade", quantity, price)
		proof := proveSignals(t, keys, sigs)

		rec, err := env.engine.SettleTrade(ctx, env.settleParams("lifecycle-match", quantity, price, proof, sigs))
		if err != nil {
			t.Fatalf("settlement failed: %v", err)
		}

		if rec.Buyer != env.bob || rec.Seller != env.alice {
			t.Error("record counterparties mismatch")
		}
		if rec.Asset != env.rwa {
			t.Error("record asset mismatch")
		}
		if rec.Quantity.Cmp(quantity) != 0 || rec.Price.Cmp(price) != 0 {
			t.Errorf("record terms %s @ %s, want %s @ %s", rec.Quantity, rec.Price, quantity, price)
		}
		if rec.Nullifier != sigs[signals.IdxNullifier] {
			t.Error("record nullifier mismatch")
		}
		if rec.Timestamp != envClock {
			t.Errorf("record timestamp %d, want %d", rec.Timestamp, envClock)
		}

		// Phase 4: verify every balance moved as agreed
		l := env.engine.Ledger()
		checks := []struct {
			name string
			key  ledger.AccountKey
			want int64
		}{
			{"seller asset escrow", ledger.AccountKey{Participant: env.alice, Asset: env.rwa}, 60},
			{"buyer asset escrow", ledger.AccountKey{Participant: env.bob, Asset: env.rwa}, 40},
			{"buyer payment escrow", ledger.AccountKey{Participant: env.bob, Asset: env.usd}, 3000},
			{"seller payment escrow", ledger.AccountKey{Participant: env.alice, Asset: env.usd}, 2000},
		}
		for _, c := range checks {
			if got := l.EscrowBalance(c.key); got.Cmp(big.NewInt(c.want)) != 0 {
				t.Errorf("%s = %s, want %d", c.name, got, c.want)
			}
			if got := l.LockedBalance(c.key); got.Sign() != 0 {
				t.Errorf("%s still has %s locked", c.name, got)
			}
		}

		if !l.IsNullifierUsed(sigs[signals.IdxNullifier]) {
			t.Error("nullifier not consumed")
		}
		if got := len(l.Settlements()); got != 1 {
			t.Errorf("journal holds %d records, want 1", got)
		}
		if _, err := l.Settlement(rec.MatchID); err != nil {
			t.Errorf("record not found by match id: %v", err)
		}

		// Phase 5: seller takes the payment leg out to tokens
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpWithdraw, env.alice, env.usd, price))
		if _, err := env.engine.Withdraw(ctx, env.alice, env.usd, price, credential); err != nil {
			t.Fatalf("payout withdrawal failed: %v", err)
		}
		if got := env.tokens.BalanceOf(env.alice, env.usd); got.Cmp(price) != 0 {
			t.Errorf("seller token payout = %s, want %s", got, price)
		}

		t.Logf("Complete trade lifecycle finished in %v", time.Since(startTime))
	})
}

func TestPrivacyProperties(t *testing.T) {
	keys := setupCircuitKeys(t)

	t.Run("Distinct Trades Yield Distinct Nullifiers", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(10)
		price := big.NewInt(500)

		// The same counterparties settle twice; each trade carries its own
		// nullifier, so nothing links the two records to one order.
		env.fundTrade(t, new(big.Int).Mul(quantity, big.NewInt(2)), new(big.Int).Mul(price, big.NewInt(2)))

		sigsA := env.tradeSignals(t, "morning-trade", quantity, price)
		sigsB := env.tradeSignals(t, "afternoon-trade", quantity, price)
		if sigsA[signals.IdxNullifier] == sigsB[signals.IdxNullifier] {
			t.Fatal("two distinct trades share a nullifier")
		}

		if _, err := env.engine.SettleTrade(ctx, env.settleParams("match-a", quantity, price, proveSignals(t, keys, sigsA), sigsA)); err != nil {
			t.Fatalf("first settlement failed: %v", err)
		}
		if _, err := env.engine.SettleTrade(ctx, env.settleParams("match-b", quantity, price, proveSignals(t, keys, sigsB), sigsB)); err != nil {
			t.Fatalf("second settlement failed: %v", err)
		}
	})

	t.Run("Public Signals Hide Counterparties", func(t *testing.T) {
		env := newTradingEnv(t, keys)

		sigs := env.tradeSignals(t, "opaque-trade", big.NewInt(10), big.NewInt(500))
		payload := signals.Encode(sigs)

		// Counterparty addresses enter the signals only under commitments;
		// the raw bytes must not appear in the payload.
		if bytes.Contains(payload, env.alice.Bytes()) {
			t.Error("seller address visible in public signals")
		}
		if bytes.Contains(payload, env.bob.Bytes()) {
			t.Error("buyer address visible in public signals")
		}
	})
}

func TestSecurityProperties(t *testing.T) {
	keys := setupCircuitKeys(t)

	t.Run("Nullifier Replay Prevention", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(10)
		price := big.NewInt(500)
		env.fundTrade(t, new(big.Int).Mul(quantity, big.NewInt(2)), new(big.Int).Mul(price, big.NewInt(2)))

		sigs := env.tradeSignals(t, "replay-trade", quantity, price)
		proof := proveSignals(t, keys, sigs)

		if _, err := env.engine.SettleTrade(ctx, env.settleParams("replay-match-1", quantity, price, proof, sigs)); err != nil {
			t.Fatalf("settlement failed: %v", err)
		}

		// The same proof under a fresh match identifier must be rejected.
		_, err := env.engine.SettleTrade(ctx, env.settleParams("replay-match-2", quantity, price, proof, sigs))
		if !errors.Is(err, ledger.ErrNullifierUsed) {
			t.Errorf("got %v, want ErrNullifierUsed", err)
		}
		if got := len(env.engine.Ledger().Settlements()); got != 1 {
			t.Errorf("journal holds %d records after replay, want 1", got)
		}
	})

	t.Run("Duplicate Match Rejection", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(10)
		price := big.NewInt(500)
		env.fundTrade(t, new(big.Int).Mul(quantity, big.NewInt(2)), new(big.Int).Mul(price, big.NewInt(2)))

		sigs := env.tradeSignals(t, "dup-trade-1", quantity, price)
		if _, err := env.engine.SettleTrade(ctx, env.settleParams("dup-match", quantity, price, proveSignals(t, keys, sigs), sigs)); err != nil {
			t.Fatalf("settlement failed: %v", err)
		}

		// A second trade with a fresh nullifier but the same match
		// identifier must be rejected.
		sigs2 := env.tradeSignals(t, "dup-trade-2", quantity, price)
		_, err := env.engine.SettleTrade(ctx, env.settleParams("dup-match", quantity, price, proveSignals(t, keys, sigs2), sigs2))
		if !errors.Is(err, ledger.ErrAlreadySettled) {
			t.Errorf("got %v, want ErrAlreadySettled", err)
		}
	})

	t.Run("Escrow Conservation", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(40)
		price := big.NewInt(2000)
		env.fundTrade(t, quantity, price)

		totals := func(asset common.Address) *big.Int {
			l := env.engine.Ledger()
			sum := new(big.Int)
			for _, p := range []common.Address{env.alice, env.bob} {
				sum.Add(sum, l.EscrowBalance(ledger.AccountKey{Participant: p, Asset: asset}))
			}
			return sum
		}
		rwaBefore := totals(env.rwa)
		usdBefore := totals(env.usd)

		sigs := env.tradeSignals(t, "conservation-trade", quantity, price)
		if _, err := env.engine.SettleTrade(ctx, env.settleParams("conservation-match", quantity, price, proveSignals(t, keys, sigs), sigs)); err != nil {
			t.Fatalf("settlement failed: %v", err)
		}

		// Settlement moves balances between accounts; it must never create
		// or destroy escrowed value.
		if got := totals(env.rwa); got.Cmp(rwaBefore) != 0 {
			t.Errorf("asset escrow total changed: %s -> %s", rwaBefore, got)
		}
		if got := totals(env.usd); got.Cmp(usdBefore) != 0 {
			t.Errorf("payment escrow total changed: %s -> %s", usdBefore, got)
		}
	})

	t.Run("Whitelist Root Binding", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(10)
		price := big.NewInt(500)
		env.fundTrade(t, quantity, price)

		credential := env.credential(t, env.adminKey,
			settlement.AdminScope(settlement.OpSetWhitelist, env.admin, []byte{0x01}))
		if err := env.engine.SetWhitelistEnforcement(env.admin, credential, true); err != nil {
			t.Fatalf("enabling enforcement failed: %v", err)
		}

		// Prove against the current root, then grow the whitelist so the
		// proof's root goes stale.
		sigs := env.tradeSignals(t, "stale-root-trade", quantity, price)
		proof := proveSignals(t, keys, sigs)
		env.reg.AddParticipant(common.Address{0x99})

		_, err := env.engine.SettleTrade(ctx, env.settleParams("stale-root-match", quantity, price, proof, sigs))
		if !errors.Is(err, settlement.ErrWhitelistRootMismatch) {
			t.Errorf("got %v, want ErrWhitelistRootMismatch", err)
		}
	})

	t.Run("Failed Settlement Leaves No Trace", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()
		quantity := big.NewInt(10)
		price := big.NewInt(500)
		env.fundTrade(t, quantity, price)

		sigs := env.tradeSignals(t, "no-trace-trade", quantity, price)
		forged := env.tradeSignals(t, "some-other-trade", quantity, price)

		// A proof over different signals fails verification; the nullifier
		// and balances must be untouched.
		_, err := env.engine.SettleTrade(ctx, env.settleParams("no-trace-match", quantity, price, proveSignals(t, keys, forged), sigs))
		if !errors.Is(err, settlement.ErrInvalidProof) {
			t.Fatalf("got %v, want ErrInvalidProof", err)
		}

		l := env.engine.Ledger()
		if l.IsNullifierUsed(sigs[signals.IdxNullifier]) {
			t.Error("nullifier consumed by failed settlement")
		}
		if got := l.LockedBalance(ledger.AccountKey{Participant: env.alice, Asset: env.rwa}); got.Cmp(quantity) != 0 {
			t.Errorf("seller lock = %s after failed settlement, want %s", got, quantity)
		}
		if got := len(l.Settlements()); got != 0 {
			t.Errorf("journal holds %d records after failed settlement", got)
		}
	})
}

func TestPerformanceBenchmarks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance benchmarks in short mode")
	}

	keys := setupCircuitKeys(t)

	t.Run("Benchmark Proof Verification", func(t *testing.T) {
		g16 := verifier.NewGroth16()
		sigs := make([]common.Hash, signals.SettlementFieldCount)
		for i := range sigs {
			sigs[i] = crypto.Keccak256Hash([]byte{byte(i + 1)})
		}
		proof := proveSignals(t, keys, sigs)
		payload := signals.Encode(sigs)

		start := time.Now()
		numTests := 5

		for i := 0; i < numTests; i++ {
			ok, err := g16.Verify(keys.vk, proof, payload)
			if err != nil || !ok {
				t.Fatalf("verification %d failed: ok=%v err=%v", i, ok, err)
			}
		}

		avgTime := time.Since(start) / time.Duration(numTests)
		t.Logf("Average proof verification time: %v", avgTime)
	})

	t.Run("Benchmark Deposit Throughput", func(t *testing.T) {
		env := newTradingEnv(t, keys)
		ctx := context.Background()

		// One credential covers every iteration since the scope binds the
		// same amount each time.
		amount := big.NewInt(1)
		credential := env.credential(t, env.aliceKey,
			settlement.AuthScope(settlement.OpDeposit, env.alice, env.rwa, amount))

		start := time.Now()
		numTests := 200

		for i := 0; i < numTests; i++ {
			if _, err := env.engine.Deposit(ctx, env.alice, env.rwa, amount, credential); err != nil {
				t.Fatalf("deposit %d failed: %v", i, err)
			}
		}

		avgTime := time.Since(start) / time.Duration(numTests)
		t.Logf("Average deposit time: %v", avgTime)
	})
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// envClock is the fixed timestamp the test engine stamps onto settlement
// records.
const envClock = 1724300000

type circuitKeys struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  []byte
}

func setupCircuitKeys(t *testing.T) *circuitKeys {
	t.Helper()

	var circuit demoCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		t.Fatalf("circuit compilation failed: %v", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		t.Fatalf("key setup failed: %v", err)
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		t.Fatalf("verifying key serialization failed: %v", err)
	}
	return &circuitKeys{ccs: ccs, pk: pk, vk: buf.Bytes()}
}

func proveSignals(t *testing.T, keys *circuitKeys, sigs []common.Hash) []byte {
	t.Helper()

	var assignment demoCircuit
	secret := new(big.Int)
	for i, s := range sigs {
		v := new(big.Int).SetBytes(s.Bytes())
		assignment.Signals[i] = v
		secret.Add(secret, v)
	}
	assignment.Secret = secret

	w, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		t.Fatalf("witness build failed: %v", err)
	}
	proof, err := groth16.Prove(keys.ccs, keys.pk, w)
	if err != nil {
		t.Fatalf("proving failed: %v", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		t.Fatalf("proof serialization failed: %v", err)
	}
	return buf.Bytes()
}

// tradingEnv wires a settlement engine over in-memory backends with three
// funded identities: the admin custodian and two trading parties.
type tradingEnv struct {
	engine *settlement.Engine
	tokens *token.Memory
	reg    *registry.Memory

	adminKey *ecdsa.PrivateKey
	aliceKey *ecdsa.PrivateKey
	bobKey   *ecdsa.PrivateKey
	admin    common.Address
	alice    common.Address
	bob      common.Address
	rwa      common.Address
	usd      common.Address
}

func newTradingEnv(t *testing.T, keys *circuitKeys) *tradingEnv {
	t.Helper()

	env := &tradingEnv{
		rwa: common.HexToAddress("0x0000000000000000000000000000000000000010"),
		usd: common.HexToAddress("0x0000000000000000000000000000000000000020"),
	}
	for _, id := range []struct {
		key  **ecdsa.PrivateKey
		addr *common.Address
	}{
		{&env.adminKey, &env.admin},
		{&env.aliceKey, &env.alice},
		{&env.bobKey, &env.bob},
	} {
		k, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("key generation failed: %v", err)
		}
		*id.key = k
		*id.addr = crypto.PubkeyToAddress(k.PublicKey)
	}

	env.tokens = token.NewMemory(env.admin)
	env.tokens.Mint(env.alice, env.rwa, big.NewInt(1000000))
	env.tokens.Mint(env.bob, env.usd, big.NewInt(1000000))

	env.reg = registry.NewMemory()
	env.reg.AddParticipant(env.alice)
	env.reg.AddParticipant(env.bob)
	env.reg.AddAsset(env.rwa)
	env.reg.AddAsset(env.usd)

	engine, err := settlement.New(ledger.New(), settlement.Config{
		Admin:           env.admin,
		VerificationKey: keys.vk,
		Clock:           func() uint64 { return envClock },
	}, settlement.Collaborators{
		Token:    env.tokens,
		Verifier: verifier.NewGroth16(),
		Registry: env.reg,
		Auth:     auth.NewEIP191(),
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	env.engine = engine
	return env
}

func (env *tradingEnv) credential(t *testing.T, key *ecdsa.PrivateKey, scope []byte) []byte {
	t.Helper()
	sig, err := auth.Sign(scope, key)
	if err != nil {
		t.Fatalf("credential signing failed: %v", err)
	}
	return sig
}

func (env *tradingEnv) deposit(t *testing.T, key *ecdsa.PrivateKey, participant, asset common.Address, amount *big.Int) {
	t.Helper()
	credential := env.credential(t, key, settlement.AuthScope(settlement.OpDeposit, participant, asset, amount))
	if _, err := env.engine.Deposit(context.Background(), participant, asset, amount, credential); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
}

func (env *tradingEnv) lock(t *testing.T, key *ecdsa.PrivateKey, participant, asset common.Address, amount *big.Int) {
	t.Helper()
	credential := env.credential(t, key, settlement.AuthScope(settlement.OpLockEscrow, participant, asset, amount))
	if err := env.engine.LockEscrow(context.Background(), participant, asset, amount, credential); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

// fundTrade deposits and locks quantity of the asset for the seller and
// price of the payment asset for the buyer.
func (env *tradingEnv) fundTrade(t *testing.T, quantity, price *big.Int) {
	t.Helper()
	env.deposit(t, env.aliceKey, env.alice, env.rwa, quantity)
	env.lock(t, env.aliceKey, env.alice, env.rwa, quantity)
	env.deposit(t, env.bobKey, env.bob, env.usd, price)
	env.lock(t, env.bobKey, env.bob, env.usd, price)
}

// tradeSignals builds the public signals of a trade between the env's two
// parties, bound to the registry's current whitelist root.
func (env *tradingEnv) tradeSignals(t *testing.T, seed string, quantity, price *big.Int) []common.Hash {
	t.Helper()
	root, err := env.reg.WhitelistRoot(context.Background())
	if err != nil {
		t.Fatalf("whitelist root lookup failed: %v", err)
	}

	sigs := make([]common.Hash, signals.SettlementFieldCount)
	sigs[signals.IdxNullifier] = crypto.Keccak256Hash([]byte(seed))
	sigs[signals.IdxBuyCommitment] = crypto.Keccak256Hash(env.bob.Bytes(), env.usd.Bytes(), []byte(seed))
	sigs[signals.IdxSellCommitment] = crypto.Keccak256Hash(env.alice.Bytes(), env.rwa.Bytes(), []byte(seed))
	sigs[signals.IdxAssetHash] = crypto.Keccak256Hash(env.rwa.Bytes())
	sigs[signals.IdxQuantity] = common.BigToHash(quantity)
	sigs[signals.IdxPrice] = common.BigToHash(price)
	sigs[signals.IdxWhitelistRoot] = root
	return sigs
}

func (env *tradingEnv) settleParams(matchSeed string, quantity, price *big.Int, proof []byte, sigs []common.Hash) settlement.SettleParams {
	return settlement.SettleParams{
		MatchID:       crypto.Keccak256Hash([]byte(matchSeed)),
		Buyer:         env.bob,
		Seller:        env.alice,
		Asset:         env.rwa,
		PaymentAsset:  env.usd,
		Quantity:      quantity,
		Price:         price,
		Proof:         proof,
		PublicSignals: signals.Encode(sigs),
	}
}
