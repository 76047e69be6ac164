// main.go - End to end settlement scenario over in-memory backends.
//
// This demonstrates the complete lifecycle of one confidential trade:
//   - a Groth16 key pair is generated for a stand-in settlement circuit
//   - two participants deposit tokens into escrow and lock their legs
//   - the operator submits the matched trade with a real proof
//   - a replay of the same nullifier is rejected
//   - the seller withdraws the payment leg back to their token account
//
// Usage:
//   go run .
//
// Architecture:
//   - the ledger, token custody and whitelist registry run in memory
//   - balance operations carry EIP-191 signatures over canonical scopes
//   - settlement carries no caller credential; the proof is the authority

package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"

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

// demoCircuit stands in for the prover's settlement circuit: seven public
// signals bound by one private witness value. Production deployments load
// the verifying key of the real circuit instead of generating one here.
type demoCircuit struct {
	Signals [signals.SettlementFieldCount]frontend.Variable `gnark:",public"`
	Secret  frontend.Variable
}

func (c *demoCircuit) Define(api frontend.API) error {
	sum := frontend.Variable(0)
	for _, s := range c.Signals {
		sum = api.Add(sum, s)
	}
	api.AssertIsEqual(sum, c.Secret)
	return nil
}

func main() {
	log.Println("=== Dark Pool Settlement: escrow lifecycle scenario ===")
	ctx := context.Background()

	// 1. Setup: compile the circuit and generate the proving material
	var circuit demoCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		log.Fatalf("ERROR: circuit compilation failed: %v", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		log.Fatalf("ERROR: key setup failed: %v", err)
	}
	var vkBuf bytes.Buffer
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		log.Fatalf("ERROR: verifying key serialization failed: %v", err)
	}

	// 2. Identities: admin custodian plus the two trading parties
	adminKey := mustKey()
	aliceKey := mustKey()
	bobKey := mustKey()
	admin := crypto.PubkeyToAddress(adminKey.PublicKey)
	alice := crypto.PubkeyToAddress(aliceKey.PublicKey)
	bob := crypto.PubkeyToAddress(bobKey.PublicKey)
	rwa := common.HexToAddress("0x0000000000000000000000000000000000000010")
	usd := common.HexToAddress("0x0000000000000000000000000000000000000020")

	// 3. Wire the engine over in-memory backends
	tokens := token.NewMemory(admin)
	tokens.Mint(alice, rwa, big.NewInt(1000))
	tokens.Mint(bob, usd, big.NewInt(10000))

	reg := registry.NewMemory()
	reg.AddParticipant(alice)
	reg.AddParticipant(bob)
	reg.AddAsset(rwa)
	reg.AddAsset(usd)

	engine, err := settlement.New(ledger.New(), settlement.Config{
		Admin:           admin,
		VerificationKey: vkBuf.Bytes(),
	}, settlement.Collaborators{
		Token:    tokens,
		Verifier: verifier.NewGroth16(),
		Registry: reg,
		Auth:     auth.NewEIP191(),
	})
	if err != nil {
		log.Fatalf("ERROR: engine construction failed: %v", err)
	}

	// 4. Both sides fund escrow and lock their legs
	quantity := big.NewInt(40)
	price := big.NewInt(2000)

	deposit(ctx, engine, aliceKey, alice, rwa, big.NewInt(100))
	lock(ctx, engine, aliceKey, alice, rwa, quantity)
	deposit(ctx, engine, bobKey, bob, usd, big.NewInt(5000))
	lock(ctx, engine, bobKey, bob, usd, price)

	log.Println("Both legs funded and locked. Proving the matched trade...")

	// 5. Build the public signals and prove the trade
	root, err := reg.WhitelistRoot(ctx)
	if err != nil {
		log.Fatalf("ERROR: whitelist root lookup failed: %v", err)
	}
	sigs := make([]common.Hash, signals.SettlementFieldCount)
	sigs[signals.IdxNullifier] = crypto.Keccak256Hash([]byte("demo-trade-0001"))
	sigs[signals.IdxBuyCommitment] = crypto.Keccak256Hash(bob.Bytes(), usd.Bytes())
	sigs[signals.IdxSellCommitment] = crypto.Keccak256Hash(alice.Bytes(), rwa.Bytes())
	sigs[signals.IdxAssetHash] = crypto.Keccak256Hash(rwa.Bytes())
	sigs[signals.IdxQuantity] = common.BigToHash(quantity)
	sigs[signals.IdxPrice] = common.BigToHash(price)
	sigs[signals.IdxWhitelistRoot] = root

	proofBytes := prove(ccs, pk, sigs)

	// 6. Submit the settlement
	rec, err := engine.SettleTrade(ctx, settlement.SettleParams{
		MatchID:       crypto.Keccak256Hash([]byte("match-0001")),
		Buyer:         bob,
		Seller:        alice,
		Asset:         rwa,
		PaymentAsset:  usd,
		Quantity:      quantity,
		Price:         price,
		Proof:         proofBytes,
		PublicSignals: signals.Encode(sigs),
	})
	if err != nil {
		log.Fatalf("ERROR: settlement failed: %v", err)
	}
	log.Printf("Trade settled: match=%s nullifier=%s t=%d", rec.MatchID.Hex(), rec.Nullifier.Hex(), rec.Timestamp)
	printBalances(engine, "after settlement", alice, bob, rwa, usd)

	// 7. Replaying the nullifier must fail
	_, err = engine.SettleTrade(ctx, settlement.SettleParams{
		MatchID:       crypto.Keccak256Hash([]byte("match-0002")),
		Buyer:         bob,
		Seller:        alice,
		Asset:         rwa,
		PaymentAsset:  usd,
		Quantity:      quantity,
		Price:         price,
		Proof:         proofBytes,
		PublicSignals: signals.Encode(sigs),
	})
	if err == nil {
		log.Fatal("ERROR: replayed nullifier was accepted")
	}
	log.Printf("Replay correctly rejected: %v", err)

	// 8. The seller takes the payment leg out
	withdraw(ctx, engine, aliceKey, alice, usd, price)
	log.Printf("Seller token balance: %s USD", tokens.BalanceOf(alice, usd))

	printBalances(engine, "final", alice, bob, rwa, usd)
	log.Println("=== Scenario complete ===")
}

func mustKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("ERROR: key generation failed: %v", err)
	}
	return key
}

// prove produces a serialized proof binding the given signal values.
func prove(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, sigs []common.Hash) []byte {
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
		log.Fatalf("ERROR: witness build failed: %v", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		log.Fatalf("ERROR: proving failed: %v", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		log.Fatalf("ERROR: proof serialization failed: %v", err)
	}
	return buf.Bytes()
}

func deposit(ctx context.Context, engine *settlement.Engine, key *ecdsa.PrivateKey, participant, asset common.Address, amount *big.Int) {
	credential := sign(key, settlement.AuthScope(settlement.OpDeposit, participant, asset, amount))
	balance, err := engine.Deposit(ctx, participant, asset, amount, credential)
	if err != nil {
		log.Fatalf("ERROR: deposit failed: %v", err)
	}
	log.Printf("Deposited %s of %s for %s (escrow now %s)", amount, short(asset), short(participant), balance)
}

func withdraw(ctx context.Context, engine *settlement.Engine, key *ecdsa.PrivateKey, participant, asset common.Address, amount *big.Int) {
	credential := sign(key, settlement.AuthScope(settlement.OpWithdraw, participant, asset, amount))
	balance, err := engine.Withdraw(ctx, participant, asset, amount, credential)
	if err != nil {
		log.Fatalf("ERROR: withdraw failed: %v", err)
	}
	log.Printf("Withdrew %s of %s for %s (escrow now %s)", amount, short(asset), short(participant), balance)
}

func lock(ctx context.Context, engine *settlement.Engine, key *ecdsa.PrivateKey, participant, asset common.Address, amount *big.Int) {
	credential := sign(key, settlement.AuthScope(settlement.OpLockEscrow, participant, asset, amount))
	if err := engine.LockEscrow(ctx, participant, asset, amount, credential); err != nil {
		log.Fatalf("ERROR: lock failed: %v", err)
	}
	log.Printf("Locked %s of %s for %s", amount, short(asset), short(participant))
}

func sign(key *ecdsa.PrivateKey, scope []byte) []byte {
	credential, err := auth.Sign(scope, key)
	if err != nil {
		log.Fatalf("ERROR: scope signing failed: %v", err)
	}
	return credential
}

func printBalances(engine *settlement.Engine, label string, alice, bob, rwa, usd common.Address) {
	l := engine.Ledger()
	log.Printf("Balances %s:", label)
	log.Printf("  seller: %s RWA escrow, %s USD escrow",
		l.EscrowBalance(ledger.AccountKey{Participant: alice, Asset: rwa}),
		l.EscrowBalance(ledger.AccountKey{Participant: alice, Asset: usd}))
	log.Printf("  buyer:  %s RWA escrow, %s USD escrow",
		l.EscrowBalance(ledger.AccountKey{Participant: bob, Asset: rwa}),
		l.EscrowBalance(ledger.AccountKey{Participant: bob, Asset: usd}))
}

func short(addr common.Address) string {
	return fmt.Sprintf("%s…%x", addr.Hex()[:6], addr.Bytes()[18:])
}
