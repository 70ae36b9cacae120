package signing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSecret     = errors.New("signing secret required")
	ErrMissingActor      = errors.New("signing actor required")
	ErrDigestMismatch    = errors.New("transaction digest does not match payload")
	ErrUnsupportedAlgo   = errors.New("unsupported signature algorithm")
	ErrInvalidCredential = errors.New("invalid verification credential")
)

// Signature es la firma sobre el hash del contenido de la transacción.
type Signature struct {
	Hash      string    `json:"hash"`
	Signature string    `json:"signature"`
	Algorithm string    `json:"algorithm"`
	PublicKey string    `json:"public_key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transaction es el registro firmado que acompaña a cada evento de custodia.
type Transaction struct {
	ID        string         `json:"transaction_id"`
	ActorID   string         `json:"actor_id"`
	Kind      string         `json:"event_kind"`
	Payload   map[string]any `json:"payload"`
	Signature Signature      `json:"signature"`
}

// Signer produce y verifica transacciones firmadas.
// La credencial de Verify es la credencial pública del actor (según el esquema).
type Signer interface {
	Sign(ctx context.Context, actorID, secret, kind string, payload map[string]any) (Transaction, error)
	Verify(ctx context.Context, credential string, tx Transaction) (bool, error)
}

// Digest calcula el hash SHA-256 (hex) del contenido firmado.
// encoding/json ordena las keys de los maps, así que el resultado es estable
// aun después de pasar por JSONB.
func Digest(actorID, kind string, payload map[string]any, ts time.Time) (string, error) {
	content := map[string]any{
		"actor_id":  actorID,
		"kind":      kind,
		"payload":   payload,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("signing: marshal payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CheckDigest recalcula el hash de tx y lo compara con el registrado.
func CheckDigest(tx Transaction) error {
	h, err := Digest(tx.ActorID, tx.Kind, tx.Payload, tx.Signature.Timestamp)
	if err != nil {
		return err
	}
	if !strings.EqualFold(h, tx.Signature.Hash) {
		return ErrDigestMismatch
	}
	return nil
}

// Clone devuelve una copia de tx que no comparte el payload.
func (tx Transaction) Clone() Transaction {
	tx.Payload = CloneMap(tx.Payload)
	return tx
}

// CloneMap copia m en profundidad (maps y slices anidados). nil queda nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

// Unmarshal decodifica JSON guardado conservando los números como
// json.Number, así el Digest recalculado usa los mismos dígitos.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
