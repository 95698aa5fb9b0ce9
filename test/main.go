package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/Corvalius/ravendb/db"
	"github.com/Corvalius/ravendb/transaction"
)

func main() {
	cfg := db.DefaultConfig()
	cfg.DirName = "test.db"
	d, err := db.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	{
		for i := 0; i < 100; i++ {
			if err := d.Update(func(tx *db.Transaction) error {
				t, err := tx.CreateTree("users")
				if err != nil {
					return err
				}
				return t.Put([]byte(fmt.Sprintf("/u/b/u_%v", i)), []byte(fmt.Sprintf("%v", i)))
			}); err != nil {
				log.Fatal(err)
			}
		}
	}
	{
		if err := d.View(func(tx *db.Transaction) error {
			t, err := tx.ReadTree("users")
			if err != nil {
				return err
			}
			for i := 0; i < 100; i++ {
				v, ok, err := t.Get([]byte(fmt.Sprintf("/u/b/u_%v", i)))
				if err != nil {
					return err
				}
				if !ok || bytes.Compare(v, []byte(fmt.Sprintf("%v", i))) != 0 {
					return fmt.Errorf("%s is not %v - %v", fmt.Sprintf("/u/b/u_%v", i), i, v)
				}
			}
			return nil
		}); err != nil {
			log.Fatal(err)
		}
	}
	{
		tx, err := d.NewLowLevelTransaction(transaction.ReadWrite)
		if err != nil {
			log.Fatal(err)
		}
		pg, err := tx.AllocateOverflowRawPage(10000)
		if err != nil {
			log.Fatal(err)
		}
		for i := range pg.Data() {
			pg.Data()[i] = byte(i)
		}
		pn := pg.PageNumber()
		if err := tx.Commit(); err != nil {
			log.Fatal(err)
		}
		tx.Dispose()

		rx, err := d.NewLowLevelTransaction(transaction.Read)
		if err != nil {
			log.Fatal(err)
		}
		rpg, err := rx.GetPage(pn)
		if err != nil {
			log.Fatal(err)
		}
		if rpg.OverflowSize() != 10000 {
			log.Fatalf("overflow size %v", rpg.OverflowSize())
		}
		rx.Dispose()
	}
	fmt.Println("ok")
}
