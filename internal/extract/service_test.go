package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/store"
)

type fakeTexts struct {
	text string
	err  error
}

func (f *fakeTexts) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	return f.text, f.err
}

type fakeStore struct {
	inserted []*model.Invoice
	outcome  store.Outcome
	err      error
}

func (f *fakeStore) Exists(ctx context.Context, invoiceNumber, contractNumber, cnpj string) (bool, error) {
	return false, nil
}

func (f *fakeStore) Insert(ctx context.Context, inv *model.Invoice) (store.Outcome, error) {
	f.inserted = append(f.inserted, inv)
	return f.outcome, f.err
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func TestProcessFilePersistsExtractedInvoice(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeInserted}
	svc := NewService(&fakeTexts{text: vivoSampleText}, st)

	err := svc.ProcessFile(context.Background(), "/faturas/vivo_0012345678_15022026.pdf")
	require.NoError(t, err)

	require.Len(t, st.inserted, 1)
	inv := st.inserted[0]
	assert.Equal(t, model.OperatorVivo, inv.Operator)
	require.NotNil(t, inv.InvoiceNumber)
	assert.Equal(t, "99887766", *inv.InvoiceNumber)
}

func TestProcessFileUnknownOperatorStillPersists(t *testing.T) {
	st := &fakeStore{outcome: store.OutcomeInserted}
	svc := NewService(&fakeTexts{text: "conta de energia"}, st)

	err := svc.ProcessFile(context.Background(), "/faturas/misterio.pdf")
	require.NoError(t, err)

	require.Len(t, st.inserted, 1)
	assert.Equal(t, model.OperatorUnknown, st.inserted[0].Operator)
}

func TestProcessFileTextExtractionError(t *testing.T) {
	st := &fakeStore{}
	svc := NewService(&fakeTexts{err: eris.New("pdftotext: damaged file")}, st)

	err := svc.ProcessFile(context.Background(), "/faturas/ruim.pdf")
	assert.Error(t, err)
	assert.Empty(t, st.inserted)
}

func TestProcessFileStoreError(t *testing.T) {
	st := &fakeStore{err: eris.New("connection refused")}
	svc := NewService(&fakeTexts{text: claroSampleText}, st)

	err := svc.ProcessFile(context.Background(), "/faturas/claro.pdf")
	assert.Error(t, err)
}
