package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/oracle"
)

var registerCmd = &cobra.Command{
	Use:   "register NAME",
	Short: "Register a person for attendance tracking",
	Long: `Register a person. Registering the same name again does nothing; a name
that differs only in case, accents or dashes from an existing registrant is
rejected.

The optional --embedding file holds a reference face embedding as a JSON
array of numbers, as produced by the face recognition model. Alternatively
--photo sends a snapshot to the face embedding server at ORACLE_URL; the
snapshot must show exactly one face.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var registrantsCmd = &cobra.Command{
	Use:   "registrants",
	Short: "List registered people",
	Args:  cobra.NoArgs,
	RunE:  runRegistrants,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(registrantsCmd)

	registerCmd.Flags().String("embedding", "", "JSON file with a reference face embedding")
	registerCmd.Flags().String("photo", "", "Snapshot image to compute the reference face embedding from")
	registerCmd.MarkFlagsMutuallyExclusive("embedding", "photo")
	registrantsCmd.Flags().Bool("json", false, "Output as JSON")
}

// readEmbedding loads a JSON float array from path.
func readEmbedding(path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("read embedding file: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("parse embedding file: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding file is empty")
	}
	return vec, nil
}

// photoEmbedding asks the face embedding server for the single face in a snapshot.
func (a *app) photoEmbedding(ctx context.Context, path string) ([]float32, error) {
	if a.cfg.Recognition.OracleURL == "" {
		return nil, errors.New("--photo requires ORACLE_URL")
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	client := oracle.NewClient(a.cfg.Recognition.OracleURL, a.cfg.Recognition.OracleMaxSide)
	embedding, err := client.SingleFace(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to compute face embedding: %w", err)
	}
	return embedding, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := facematch.CleanName(args[0])
	if name == "" {
		return errors.New("name must not be empty")
	}

	var embedding []float32
	if path := mustGetString(cmd, "embedding"); path != "" {
		var err error
		if embedding, err = readEmbedding(path); err != nil {
			return err
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if path := mustGetString(cmd, "photo"); path != "" {
		if embedding, err = a.photoEmbedding(ctx, path); err != nil {
			return err
		}
	}

	created, err := a.store.AddRegistrant(ctx, name)
	if errors.Is(err, database.ErrRegistrantExists) {
		return fmt.Errorf("cannot register %q: %w", name, err)
	}
	if err != nil {
		return fmt.Errorf("failed to register %q: %w", name, err)
	}
	if created {
		fmt.Printf("Registered %s\n", name)
	} else {
		fmt.Printf("%s is already registered\n", name)
	}

	if embedding != nil {
		id, err := a.store.SaveFaceEmbedding(ctx, name, embedding)
		if err != nil {
			return fmt.Errorf("failed to save face embedding: %w", err)
		}
		fmt.Printf("Saved %d-dimensional face embedding (id %d)\n", len(embedding), id)
	}
	return nil
}

func runRegistrants(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	registrants, err := a.store.ListRegistrants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list registrants: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(registrants)
	}
	if len(registrants) == 0 {
		fmt.Println("No registrants yet. Add one with: face-attendance register NAME")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREGISTERED")
	for _, r := range registrants {
		fmt.Fprintf(w, "%s\t%s\n", r.Name, r.CreatedAt.In(a.service.Location()).Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", len(registrants))
	return nil
}
